package services

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bytefinance/backend/internal/models"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"event_type"`
	EntryID        string    `json:"entry_id,omitempty"`
	UserID         string    `json:"user_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Amount         string    `json:"amount,omitempty"`
	Status         string    `json:"status"`
	Details        any       `json:"details,omitempty"`
}

// AuditLogger writes audit events through a dedicated logrus entry so they can
// be routed apart from operational logs.
type AuditLogger struct {
	log *logrus.Entry
	now func() time.Time
}

func NewAuditLogger(log *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		log: log.WithField("channel", "audit"),
		now: time.Now,
	}
}

// LogEntry records a finalized ledger entry.
func (a *AuditLogger) LogEntry(entry *models.LedgerEntry) {
	details := map[string]string{"kind": string(entry.Kind)}
	if entry.Counterparty != "" {
		details["counterparty"] = entry.Counterparty
	}
	if entry.Symbol != "" {
		details["symbol"] = entry.Symbol
		details["quantity"] = entry.Quantity.String()
	}
	if entry.FailureReason != "" {
		details["reason"] = entry.FailureReason
	}
	if entry.ReversesEntryID != "" {
		details["reverses_entry_id"] = entry.ReversesEntryID
	}
	a.write(AuditEvent{
		EventType:      "LEDGER_ENTRY",
		EntryID:        entry.ID,
		UserID:         entry.UserID,
		IdempotencyKey: entry.IdempotencyKey,
		Amount:         entry.Amount.String(),
		Status:         string(entry.Status),
		Details:        details,
	})
}

// LogCompensation records that a saga step was undone.
func (a *AuditLogger) LogCompensation(userID, entryID, compensationID, reason string) {
	a.write(AuditEvent{
		EventType: "COMPENSATION",
		EntryID:   entryID,
		UserID:    userID,
		Status:    "reversed",
		Details: map[string]string{
			"compensation_entry_id": compensationID,
			"reason":                reason,
		},
	})
}

func (a *AuditLogger) LogLoanTransition(loan *models.LoanApplication, from models.LoanStatus) {
	a.write(AuditEvent{
		EventType: "LOAN_STATUS",
		UserID:    loan.UserID,
		Amount:    loan.AmountRequested.String(),
		Status:    string(loan.Status),
		Details: map[string]string{
			"loan_id": loan.ID,
			"from":    string(from),
		},
	})
}

func (a *AuditLogger) LogError(userID, entryID string, err error) {
	a.write(AuditEvent{
		EventType: "ERROR",
		EntryID:   entryID,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) write(event AuditEvent) {
	event.Timestamp = a.now().UTC()
	a.log.WithField("event", event).Info(event.EventType)
}
