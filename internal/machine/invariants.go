package machine

import (
	"fmt"

	"github.com/fleetsignal/wsconn/internal/guards"
	"github.com/fleetsignal/wsconn/internal/model"
)

// checkInvariants enforces the fatal invariants of spec.md §8 on the
// context a step just produced. A violation is a bug in the transition
// table or an action, never a normal runtime condition, so the caller
// escalates to Terminated with cause invariant_violation (spec.md §4.1
// step 3).
func checkInvariants(prior, next model.Context, lim guards.Limits, maxQueueSize int) error {
	wantSocket := next.State == model.Connecting || next.State == model.Connected || next.State == model.Disconnecting
	if next.HasSocket() != wantSocket {
		return fmt.Errorf("socket uniqueness violated: state=%s hasSocket=%v", next.State, next.HasSocket())
	}

	if next.Metrics.MessagesSent < prior.Metrics.MessagesSent ||
		next.Metrics.MessagesReceived < prior.Metrics.MessagesReceived ||
		next.Metrics.BytesSent < prior.Metrics.BytesSent ||
		next.Metrics.BytesReceived < prior.Metrics.BytesReceived ||
		next.Metrics.ErrorCount < prior.Metrics.ErrorCount {
		return fmt.Errorf("metric monotonicity violated: prior=%+v next=%+v", prior.Metrics, next.Metrics)
	}
	// reconnectAttempts is allowed to drop back to 0 exactly when
	// stabilization or a fresh connect resets it; any other decrease is a
	// violation.
	if next.Metrics.ReconnectAttempts < prior.Metrics.ReconnectAttempts && next.Metrics.ReconnectAttempts != 0 {
		return fmt.Errorf("reconnectAttempts decreased without reset: prior=%d next=%d",
			prior.Metrics.ReconnectAttempts, next.Metrics.ReconnectAttempts)
	}

	if next.RateWindow != nil && next.RateWindow.Count > next.RateWindow.Limit {
		return fmt.Errorf("rate limit violated: count=%d limit=%d", next.RateWindow.Count, next.RateWindow.Limit)
	}

	if next.Queue != nil && next.Queue.Len() > maxQueueSize {
		return fmt.Errorf("queue bound violated: len=%d max=%d", next.Queue.Len(), maxQueueSize)
	}

	if next.Metrics.ReconnectAttempts > lim.MaxRetries {
		return fmt.Errorf("retry bound violated: attempts=%d max=%d", next.Metrics.ReconnectAttempts, lim.MaxRetries)
	}

	return nil
}
