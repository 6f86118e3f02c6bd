package chat

// Event is a realtime frame pushed to a connected client.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Event names emitted by the session manager.
const (
	EventReceiveMessage = "receive_message"
	EventNotification   = "new_message_notification"
	EventError          = "error"
)

// Conn is a live client connection handle. Implementations must make Send
// safe for concurrent use and non-blocking: a slow or dead peer returns an
// error instead of stalling fan-out.
type Conn interface {
	ID() string
	UserID() string
	Send(Event) error
}
