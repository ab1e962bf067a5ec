package log

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldSensor    = "sensor"
	FieldKind      = "kind"
	FieldSessionID = "session_id"
	FieldPath      = "path"
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"
	FieldPID       = "pid"
)
