package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectUsage       = "ledger.usage"
	SubjectAdjustments = "ledger.adjustments"
)

// LedgerEvent is published after every committed ledger mutation. Delivery is
// fire-and-forget: downstream consumers (analytics, reconciliation tooling)
// must tolerate gaps.
type LedgerEvent struct {
	UserID  string    `json:"user_id"`
	Kind    string    `json:"kind"`
	Amount  int       `json:"amount"`
	Balance int       `json:"balance"`
	ActorID string    `json:"actor_id,omitempty"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher emits ledger events. The zero-value *NATSPublisher (nil) is a
// valid no-op publisher.
type Publisher interface {
	Publish(subject string, ev LedgerEvent)
}

type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewNATSPublisher(conn *nats.Conn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, logger: logger}
}

func (p *NATSPublisher) Publish(subject string, ev LedgerEvent) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal ledger event", "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("publish ledger event", "subject", subject, "error", err)
	}
}
