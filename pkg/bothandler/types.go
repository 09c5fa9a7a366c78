// Package bothandler is the capability surface exposed to embedded bot
// logic. A Handler restricts a full platform identity down to four
// capabilities: sending messages, replying, reading per-bot configuration,
// and bot-scoped storage. Bot code never receives the platform identity or
// session object itself.
package bothandler

import "fmt"

// Identity is a bot's bound execution context: a stable identifier, display
// name, reachable address, and owning realm. Immutable for the lifetime of
// one invocation; owned by the platform and referenced by handlers.
type Identity struct {
	ID       string `json:"id"`        // Stable bot identifier, unique per instance
	FullName string `json:"full_name"` // Display name shown as message sender
	Email    string `json:"email"`     // Reachable address of the bot
	Realm    string `json:"realm"`     // Owning namespace
}

// Validate checks that the identity carries the fields every invocation
// depends on.
func (id Identity) Validate() error {
	if id.ID == "" {
		return fmt.Errorf("identity id is required")
	}
	if id.FullName == "" {
		return fmt.Errorf("identity full name is required")
	}
	if id.Email == "" {
		return fmt.Errorf("identity email is required")
	}
	return nil
}

// MessageKind is the addressing mode of a message.
type MessageKind string

const (
	// KindStream addresses a named stream; recipients is the stream name.
	KindStream MessageKind = "stream"

	// KindPrivate addresses one or more users directly.
	KindPrivate MessageKind = "private"
)

// Validate checks that the kind is one of the known addressing modes.
func (k MessageKind) Validate() error {
	switch k {
	case KindStream, KindPrivate:
		return nil
	default:
		return fmt.Errorf("invalid message kind: %q (must be %q or %q)", string(k), KindStream, KindPrivate)
	}
}

// OutboundMessage is a message constructed by bot logic for delivery. For
// stream messages To holds the stream name as its only element; for private
// messages To holds the recipient addresses.
type OutboundMessage struct {
	Kind    MessageKind `json:"kind"`
	To      []string    `json:"to"`
	Subject string      `json:"subject,omitempty"`
	Content string      `json:"content"`
}

// Validate checks that the message can be addressed.
func (m *OutboundMessage) Validate() error {
	if err := m.Kind.Validate(); err != nil {
		return err
	}
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	for i, to := range m.To {
		if to == "" {
			return fmt.Errorf("message recipient %d is empty", i)
		}
	}
	return nil
}

// IncomingMessage is the platform event delivered to a bot. For stream
// messages Recipients holds the stream name as its only element; for
// private messages it holds the full recipient set of the original.
type IncomingMessage struct {
	ID          string      `json:"id"`
	Kind        MessageKind `json:"kind"`
	SenderEmail string      `json:"sender_email"`
	Recipients  []string    `json:"recipients"`
	Subject     string      `json:"subject,omitempty"`
	Content     string      `json:"content"`
}
