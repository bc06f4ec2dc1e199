package dynamo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// updateExpr is a SET expression with its placeholder maps. Every attribute
// name goes through a placeholder, so reserved words like "role" and
// "status" are safe.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET
// expression. Fields are emitted in sorted order.
func buildUpdateExpr(updates map[string]interface{}) (updateExpr, error) {
	return buildUpsertExpr(updates, nil)
}

// buildUpsertExpr is buildUpdateExpr plus fields written only when the item
// does not have them yet (if_not_exists).
func buildUpsertExpr(set, setIfAbsent map[string]interface{}) (updateExpr, error) {
	ue := updateExpr{
		Names:  make(map[string]string),
		Values: make(map[string]types.AttributeValue),
	}
	var clauses []string
	i := 0
	add := func(fields map[string]interface{}, clause func(name, value string) string) error {
		for _, k := range sortedKeys(fields) {
			nameKey := fmt.Sprintf("#f%d", i)
			valueKey := fmt.Sprintf(":v%d", i)
			av, err := attributevalue.Marshal(fields[k])
			if err != nil {
				return fmt.Errorf("marshal field %s: %w", k, err)
			}
			ue.Names[nameKey] = k
			ue.Values[valueKey] = av
			clauses = append(clauses, clause(nameKey, valueKey))
			i++
		}
		return nil
	}

	if err := add(set, func(n, v string) string { return n + " = " + v }); err != nil {
		return updateExpr{}, err
	}
	if err := add(setIfAbsent, func(n, v string) string {
		return fmt.Sprintf("%s = if_not_exists(%s, %s)", n, n, v)
	}); err != nil {
		return updateExpr{}, err
	}
	if i == 0 {
		return updateExpr{}, fmt.Errorf("no fields to update")
	}
	ue.Expr = "SET " + strings.Join(clauses, ", ")
	return ue, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
