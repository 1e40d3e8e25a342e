package models

import "sync"

// TokenLedger tracks per-role and total token usage for one session.
// Totals only decrease through an explicit compaction adjustment, which is
// recorded after the summarization call it accounts for.
type TokenLedger struct {
	mu      sync.RWMutex
	perRole map[Role]int
	total   int
}

// NewTokenLedger creates an empty ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{perRole: make(map[Role]int)}
}

// Add records tokens consumed by a role. Negative counts are ignored.
func (l *TokenLedger) Add(role Role, tokens int) {
	if tokens <= 0 {
		return
	}
	l.mu.Lock()
	l.perRole[role] += tokens
	l.total += tokens
	l.mu.Unlock()
}

// RecordCompaction applies the token delta of replacing a role's raw content
// with a summary. It is the only operation that decreases the ledger.
func (l *TokenLedger) RecordCompaction(role Role, before, after int) {
	delta := before - after
	if delta <= 0 {
		return
	}
	l.mu.Lock()
	if l.perRole[role] < delta {
		delta = l.perRole[role]
	}
	l.perRole[role] -= delta
	l.total -= delta
	l.mu.Unlock()
}

// Total returns the running total across all roles.
func (l *TokenLedger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// RoleTotal returns the running total for one role.
func (l *TokenLedger) RoleTotal(role Role) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.perRole[role]
}

// Snapshot returns a copy of the per-role counts keyed by role name.
func (l *TokenLedger) Snapshot() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.perRole))
	for role, n := range l.perRole {
		out[string(role)] = n
	}
	return out
}
