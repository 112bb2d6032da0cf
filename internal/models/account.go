package models

import "time"

const (
	// DefaultBalance is granted to an account the first time it is read.
	DefaultBalance = 100

	// HistoryLimit caps the usage and adjustment histories. When an append
	// would exceed it, the oldest entries are dropped first.
	HistoryLimit = 50
)

// Account is the per-user credit record. Balance never goes negative; every
// mutation goes through the ledger service, which appends an audit entry and
// commits via the store's compare-and-write.
type Account struct {
	UserID      string            `json:"user_id"`
	Balance     int               `json:"balance"`
	Adjustments []AdjustmentEntry `json:"adjustments"`
	Usage       []UsageEntry      `json:"usage"`
}

// UsageEntry records a job-driven balance change. Amount is negative for a
// debit and positive for a refund or top-up.
type UsageEntry struct {
	At     time.Time `json:"at"`
	Amount int       `json:"amount"`
	Note   string    `json:"note"`
}

// AdjustmentEntry records an administrative balance override.
type AdjustmentEntry struct {
	At      time.Time `json:"at"`
	ActorID string    `json:"actor_id"`
	Before  int       `json:"before"`
	After   int       `json:"after"`
	Reason  string    `json:"reason"`
}

// NewAccount returns the implicit account created on first read.
func NewAccount(userID string) Account {
	return Account{UserID: userID, Balance: DefaultBalance}
}

// AppendUsage appends a usage entry, trimming to HistoryLimit.
func (a *Account) AppendUsage(e UsageEntry) {
	a.Usage = append(a.Usage, e)
	if len(a.Usage) > HistoryLimit {
		a.Usage = a.Usage[len(a.Usage)-HistoryLimit:]
	}
}

// AppendAdjustment appends an adjustment entry, trimming to HistoryLimit.
func (a *Account) AppendAdjustment(e AdjustmentEntry) {
	a.Adjustments = append(a.Adjustments, e)
	if len(a.Adjustments) > HistoryLimit {
		a.Adjustments = a.Adjustments[len(a.Adjustments)-HistoryLimit:]
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// store's snapshot.
func (a Account) Clone() Account {
	cp := a
	cp.Adjustments = append([]AdjustmentEntry(nil), a.Adjustments...)
	cp.Usage = append([]UsageEntry(nil), a.Usage...)
	return cp
}
