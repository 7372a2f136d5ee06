package outbox

// Outbox rows are persisted inside the same DB transaction as state changes.
// The worker relay reads pending rows and publishes them to the message bus.

// Row status lifecycle. Failed publishes keep the row pending so the next
// relay cycle retries it.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Message is the transport-agnostic shape relay workers operate on.
type Message struct {
	ID        string
	EventType string
	Payload   []byte
	Status    string
}
