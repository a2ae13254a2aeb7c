package log

// Field names shared by the request log lines in the HTTP middleware.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status"
	FieldDuration   = "duration_ms"
)

// Component names for the two binaries.
const (
	ComponentApp    = "app"
	ComponentWorker = "worker"
)
