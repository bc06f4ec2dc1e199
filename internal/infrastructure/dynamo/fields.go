package dynamo

// DynamoDB attribute names of the users table. Using constants prevents
// silent runtime bugs caused by key typos.
const (
	fieldPhoneNumber      = "phone_number"
	fieldUserID           = "user_id"
	fieldRole             = "role"
	fieldStatus           = "status"
	fieldLastLogin        = "last_login"
	fieldLastLoginAttempt = "last_login_attempt"
	fieldDeviceID         = "device_id"
	fieldIPAddress        = "ip_address"
	fieldCreatedAt        = "created_at"
	fieldUpdatedAt        = "updated_at"
)
