package ledger

import (
	"errors"
	"math/big"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonPositiveAmount   = errors.New("non-positive transfer amount")
)

// journalEntry remembers one account's balance before a mutation.
type journalEntry struct {
	account string
	prev    *big.Int
}

// Memory is an in-process fungible-token ledger. Transfer spends from the
// operator account the ledger was created with. The journal supports
// snapshot/revert so a caller can undo every movement made after a mark.
type Memory struct {
	operator string
	balances map[string]*big.Int
	journal  []journalEntry
}

// NewMemory creates a ledger whose Transfer method spends from operator.
func NewMemory(operator string) *Memory {
	return &Memory{
		operator: operator,
		balances: make(map[string]*big.Int),
	}
}

// Mint credits an account out of thin air. Test and bootstrap helper.
func (m *Memory) Mint(account string, amount *big.Int) {
	m.touch(account)
	m.balances[account] = new(big.Int).Add(m.balances[account], amount)
}

// BalanceOf returns a copy of the account's balance.
func (m *Memory) BalanceOf(account string) *big.Int {
	if b, ok := m.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (m *Memory) Transfer(to string, amount *big.Int) error {
	return m.move(m.operator, to, amount)
}

func (m *Memory) TransferFrom(from, to string, amount *big.Int) error {
	return m.move(from, to, amount)
}

// Snapshot marks the current journal position.
func (m *Memory) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every movement made after the mark, newest first.
func (m *Memory) RevertToSnapshot(mark int) {
	for i := len(m.journal) - 1; i >= mark; i-- {
		e := m.journal[i]
		m.balances[e.account] = e.prev
	}
	m.journal = m.journal[:mark]
}

func (m *Memory) move(from, to string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	m.touch(from)
	m.touch(to)
	if m.balances[from].Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	m.journal = append(m.journal,
		journalEntry{from, m.balances[from]},
		journalEntry{to, m.balances[to]},
	)
	m.balances[from] = new(big.Int).Sub(m.balances[from], amount)
	m.balances[to] = new(big.Int).Add(m.balances[to], amount)
	return nil
}

func (m *Memory) touch(account string) {
	if _, ok := m.balances[account]; !ok {
		m.balances[account] = new(big.Int)
	}
}
