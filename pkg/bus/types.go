package bus

// InboundMessage is one eligible contact message delivered by the
// webhook transport. The transport has already filtered events: only
// incoming, non-private messages with content reach the bus.
type InboundMessage struct {
	ConversationID   int      `json:"conversation_id"`
	MessageID        string   `json:"message_id"`
	AccountID        string   `json:"account_id"`
	Content          string   `json:"content"`
	Labels           []string `json:"labels,omitempty"`
	SenderName       string   `json:"sender_name,omitempty"`
	FirstInteraction bool     `json:"first_interaction,omitempty"`
}
