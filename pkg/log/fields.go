package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Chat
	FieldMessageID      = "message_id"
	FieldSubscriptionID = "subscription_id"
	FieldSubscribers    = "subscribers"
	FieldOperation      = "operation"

	// Service
	FieldService    = "service"
	FieldInstanceID = "instance_id"
	FieldComponent  = "component"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
