package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-whatsapp-otp/internal/domain"
)

type errorBody struct {
	Type    domain.ErrorType `json:"type,omitempty"`
	Message string           `json:"message"`
}

// writeJSONError writes a JSON-encoded error response with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, status int, errType domain.ErrorType, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Type: errType, Message: msg})
}
