// Package host declares the contracts the surrounding application provides
// to the marketplace engine: money movement and player notification. In-memory
// implementations back the standalone simulator and tests.
package host

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
)

// Severity classifies a notification for the presentation layer.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// Name returns a human-readable severity name.
func (s Severity) Name() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Ledger is the host's monetary ledger. Debit fails when the owner cannot
// cover the amount; every fee charge checks this before committing state.
type Ledger interface {
	Debit(ownerID string, amount float64) error
	Credit(ownerID string, amount float64)
}

// Notifier delivers engine messages to an owner's presentation layer.
type Notifier interface {
	Notify(ownerID, message string, severity Severity)
}

// MemoryLedger is an in-process Ledger keyed by owner ID.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
}

// NewMemoryLedger creates a ledger with the given starting balances.
func NewMemoryLedger(balances map[string]float64) *MemoryLedger {
	b := make(map[string]float64, len(balances))
	for k, v := range balances {
		b[k] = v
	}
	return &MemoryLedger{balances: b}
}

// Debit removes funds, failing without mutation when the balance is short.
func (m *MemoryLedger) Debit(ownerID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balances[ownerID]
	if bal < amount {
		return fmt.Errorf("balance %s short of %s",
			humanize.CommafWithDigits(bal, 0), humanize.CommafWithDigits(amount, 0))
	}
	m.balances[ownerID] = bal - amount
	return nil
}

// Credit adds funds.
func (m *MemoryLedger) Credit(ownerID string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[ownerID] += amount
}

// Balance returns an owner's current funds.
func (m *MemoryLedger) Balance(ownerID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[ownerID]
}

// LogNotifier writes notifications to the structured log. Default sink for
// the standalone simulator.
type LogNotifier struct{}

// Notify logs the message with its severity.
func (LogNotifier) Notify(ownerID, message string, severity Severity) {
	switch severity {
	case SeverityError:
		slog.Error("notify", "owner", ownerID, "message", message)
	case SeverityWarning:
		slog.Warn("notify", "owner", ownerID, "message", message)
	default:
		slog.Info("notify", "owner", ownerID, "message", message)
	}
}
