package coordinator

import (
	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

// Ledger owns the escrow entries, one per job. Funds move through the
// BalanceSource collaborator; the settled flag guarantees that for any job
// exactly one of Release/Refund ever succeeds. Access is guarded by the
// coordinator lock.
type Ledger struct {
	bank    BalanceSource
	entries map[string]*domain.EscrowEntry
	clock   Clock
}

func NewLedger(bank BalanceSource, clock Clock) *Ledger {
	return &Ledger{
		bank:    bank,
		entries: make(map[string]*domain.EscrowEntry),
		clock:   clock,
	}
}

// Hold debits the payer and records an unsettled entry for the job.
func (l *Ledger) Hold(jobID, payer string, amount int64) error {
	if err := l.bank.Debit(payer, amount); err != nil {
		return err
	}
	l.entries[jobID] = &domain.EscrowEntry{
		JobID:      jobID,
		HeldAmount: amount,
		Payer:      payer,
	}
	return nil
}

// Release credits the full held amount to the beneficiary and marks the
// entry settled. A second settlement attempt returns ErrAlreadySettled.
func (l *Ledger) Release(jobID, beneficiary string) (int64, error) {
	entry, exists := l.entries[jobID]
	if !exists {
		return 0, domain.ErrUnknownEscrowEntry
	}
	if entry.Settled {
		return 0, domain.ErrAlreadySettled
	}

	if err := l.bank.Credit(beneficiary, entry.HeldAmount); err != nil {
		return 0, err
	}
	l.settle(entry, beneficiary)
	return entry.HeldAmount, nil
}

// Refund credits the full held amount back to the original payer and marks
// the entry settled. Same exactly-once guarantee as Release.
func (l *Ledger) Refund(jobID string) (string, int64, error) {
	entry, exists := l.entries[jobID]
	if !exists {
		return "", 0, domain.ErrUnknownEscrowEntry
	}
	if entry.Settled {
		return "", 0, domain.ErrAlreadySettled
	}

	if err := l.bank.Credit(entry.Payer, entry.HeldAmount); err != nil {
		return "", 0, err
	}
	l.settle(entry, entry.Payer)
	return entry.Payer, entry.HeldAmount, nil
}

// Entry returns the escrow entry for a job, or ErrUnknownEscrowEntry.
func (l *Ledger) Entry(jobID string) (*domain.EscrowEntry, error) {
	entry, exists := l.entries[jobID]
	if !exists {
		return nil, domain.ErrUnknownEscrowEntry
	}
	return entry, nil
}

// Restore reinstates an entry loaded from the journal. The debit already
// happened in a previous process lifetime, so no funds move.
func (l *Ledger) Restore(entry *domain.EscrowEntry) {
	l.entries[entry.JobID] = entry
}

func (l *Ledger) settle(entry *domain.EscrowEntry, beneficiary string) {
	now := l.clock.Now()
	entry.Settled = true
	entry.Beneficiary = beneficiary
	entry.SettledAt = &now
}
