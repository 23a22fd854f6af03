package providers

import "context"

// Role is the speaker of a provider message. Providers only know two roles;
// tool output is re-expressed as user text before it gets here.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn sent to the model.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Provider is the model backend the agent loop talks to.
// GetResponse returns the raw reply text; failures should be *Error values
// (see Classify) so callers can tell transient from permanent problems.
type Provider interface {
	Name() string
	GetResponse(ctx context.Context, messages []Message, systemPrompt string) (string, error)
}
