package mostro

import "time"

// DefaultStalenessThreshold is the recommended staleness guard for the
// action-and-age correlation fallback (spec §4.F "Correlation policy").
const DefaultStalenessThreshold = 30 * time.Second

// Received pairs a decoded message with the time it was created (the engine
// fills ReceivedAt from the rumor's untweaked created_at), which the
// staleness guard uses as the message's age.
type Received struct {
	Message    *Message
	ReceivedAt time.Time
}

// MatchResult is the outcome of a correlation lookup.
type MatchResult struct {
	Message *Message
	// Stale is true when the result came from the action-and-age fallback
	// and is older than the staleness threshold — callers must warn the
	// user before acting on it (spec §4.F).
	Stale bool
	// ByRequestID is true when the match came from an exact request_id
	// echo rather than the fallback.
	ByRequestID bool
}

// Match implements the correlation policy: prefer an exact request_id echo;
// if no candidate echoes requestID, fall back to the most recent message
// of the expected action, flagging it stale if older than threshold. A
// threshold <= 0 uses DefaultStalenessThreshold. Returns false if nothing at
// all matches the expected action.
func Match(candidates []Received, requestID uint64, expected Action, now time.Time, threshold time.Duration) (MatchResult, bool) {
	if threshold <= 0 {
		threshold = DefaultStalenessThreshold
	}

	for _, c := range candidates {
		if c.Message == nil || c.Message.Kind.RequestID == nil {
			continue
		}
		if *c.Message.Kind.RequestID == requestID {
			return MatchResult{Message: c.Message, ByRequestID: true}, true
		}
	}

	var best *Received
	for i := range candidates {
		c := &candidates[i]
		if c.Message == nil || c.Message.Kind.Action != expected {
			continue
		}
		if best == nil || c.ReceivedAt.After(best.ReceivedAt) {
			best = c
		}
	}
	if best == nil {
		return MatchResult{}, false
	}

	stale := now.Sub(best.ReceivedAt) > threshold
	return MatchResult{Message: best.Message, Stale: stale}, true
}
