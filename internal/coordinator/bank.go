package coordinator

import (
	"sync"

	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

// BalanceSource is the funds collaborator the escrow ledger debits and
// credits against. Debit returns ErrInsufficientBalance when the account
// cannot cover the amount.
type BalanceSource interface {
	Debit(account string, amount int64) error
	Credit(account string, amount int64) error
}

// MemoryBank is an in-memory BalanceSource keyed by account address. It is
// safe for concurrent use on its own so deposit/balance endpoints can hit it
// without going through the coordinator lock.
type MemoryBank struct {
	mu       sync.RWMutex
	balances map[string]int64
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		balances: make(map[string]int64),
	}
}

// Deposit adds funds to an account.
func (b *MemoryBank) Deposit(account string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Balance returns the current balance of an account.
func (b *MemoryBank) Balance(account string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[account]
}

func (b *MemoryBank) Debit(account string, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[account] < amount {
		return domain.ErrInsufficientBalance
	}
	b.balances[account] -= amount
	return nil
}

func (b *MemoryBank) Credit(account string, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
	return nil
}
