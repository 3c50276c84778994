package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Distribution layer
	FieldSessionID = "session_id"
	FieldOutletID  = "outlet_id"
	FieldOrderID   = "order_id"
	FieldRoom      = "room"
	FieldEventKind = "event_kind"
	FieldTransport = "transport"

	// Service
	FieldService = "service"
	FieldNodeID  = "node_id"
)
