package llm

import (
	"context"
	"fmt"
)

// NoopReasoner returns canned responses without calling any external service.
// Useful for dry runs and local development without credentials.
type NoopReasoner struct{}

// NewNoopReasoner creates a new no-op reasoner.
func NewNoopReasoner() *NoopReasoner {
	return &NoopReasoner{}
}

// Invoke implements Reasoner with a fixed neutral answer per role.
func (n *NoopReasoner) Invoke(_ context.Context, role string, _, _ string) (string, error) {
	switch role {
	case "research_manager", "risk_judge":
		return "CONVERGED: YES\nSYNTHESIS: No reasoning capability configured; neutral stance.\nACTION: HOLD\nCONFIDENCE: 0", nil
	case "trader":
		return "ACTION: WAIT\nCONFIDENCE: 0\nSIZE_PERCENT: 0\nREASONING: No reasoning capability configured.", nil
	default:
		return fmt.Sprintf("RECOMMENDATION: HOLD\nCONFIDENCE: 0\nREASONING: No reasoning capability configured for role %s.", role), nil
	}
}
