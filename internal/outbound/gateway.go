package outbound

import "context"

// Gateway is the channel-specific send collaborator. Implementations are
// treated as opaque and potentially slow or unreliable.
type Gateway interface {
	// Channel returns the channel identifier this gateway serves.
	Channel() string
	// Send delivers the body to the destination and returns the provider's
	// message id.
	Send(ctx context.Context, destination, body string) (string, error)
}
