package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"council-trader/pkg/utils"
)

func testRetryConfig(attempts int) utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestNoopReasonerContracts(t *testing.T) {
	n := NewNoopReasoner()
	ctx := context.Background()

	out, err := n.Invoke(ctx, "market", "", "")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.HasPrefix(out, "RECOMMENDATION:") {
		t.Errorf("analyst response breaks contract: %q", out)
	}

	out, _ = n.Invoke(ctx, "trader", "", "")
	if !strings.HasPrefix(out, "ACTION:") {
		t.Errorf("trader response breaks contract: %q", out)
	}

	for _, role := range []string{"research_manager", "risk_judge"} {
		out, _ = n.Invoke(ctx, role, "", "")
		if !strings.Contains(out, "CONVERGED: YES") || !strings.Contains(out, "SYNTHESIS:") {
			t.Errorf("%s response breaks contract: %q", role, out)
		}
	}
}
