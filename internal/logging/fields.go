package logging

// Standardized structured logging keys.
const (
	FieldComponent     = "component"
	FieldRoomID        = "room_id"
	FieldSessionID     = "session_id"
	FieldStage         = "stage"
	FieldItemID        = "item_id"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldImpact        = "impact"
	FieldErrorKind     = "error_kind"
	FieldDecisionType  = "decision_type"
)
