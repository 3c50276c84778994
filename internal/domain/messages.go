package domain

// WebSocket control message types from client.
const (
	MsgTypeJoinOrderRoom  = "join-order-room"
	MsgTypeLeaveOrderRoom = "leave-order-room"
	MsgTypeHeartbeat      = "heartbeat"
)

// WebSocket / SSE message types to client.
const (
	MsgTypeConnection        = "connection"
	MsgTypeJoinedOutlet      = "joined-outlet"
	MsgTypeJoinedOrderRoom   = "joined-order-room"
	MsgTypeHeartbeatResponse = "heartbeat-response"
	MsgTypeError             = "error"
)

// HeaderSessionID lets an HTTP producer identify its live session so
// fan-out can exclude it, same as a socket publish would.
const HeaderSessionID = "X-Session-ID"

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotConnected  = "NOT_CONNECTED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all control messages. Event
// payloads carry a "kind" field instead and are decoded separately.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinOrderRoomMessage struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

type LeaveOrderRoomMessage struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

type HeartbeatMessage struct {
	Type string `json:"type"`
}

// Server -> Client messages

type ConnectionMessage struct {
	Type      string `json:"type"`
	OutletID  string `json:"outletId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message,omitempty"`
}

type JoinedOutletMessage struct {
	Type      string `json:"type"`
	OutletID  string `json:"outletId"`
	SessionID string `json:"sessionId"`
}

type JoinedOrderRoomMessage struct {
	Type      string `json:"type"`
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
}

type HeartbeatResponseMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
