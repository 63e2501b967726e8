package domain

import "time"

// EscrowEntry holds a job's bounty between creation and settlement.
// HeldAmount is debited from Payer exactly once at job creation and credited
// exactly once at release or refund.
type EscrowEntry struct {
	JobID       string
	HeldAmount  int64
	Payer       string
	Settled     bool
	Beneficiary string
	SettledAt   *time.Time
}

// Clone returns a copy safe to hand to readers outside the coordinator lock.
func (e *EscrowEntry) Clone() *EscrowEntry {
	c := *e
	if e.SettledAt != nil {
		t := *e.SettledAt
		c.SettledAt = &t
	}
	return &c
}
