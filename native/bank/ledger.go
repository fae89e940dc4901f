package bank

import (
	"errors"
	"fmt"
	"math"

	"stakelend/crypto"
)

var (
	// ErrInsufficientFunds is returned when the source balance cannot cover a
	// transfer.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrUnauthorizedTransfer is returned when the signing authority does not
	// control the source balance.
	ErrUnauthorizedTransfer = errors.New("bank: authority does not control source balance")
	// ErrBalanceOverflow is returned when a credit would exceed the balance
	// range.
	ErrBalanceOverflow = errors.New("bank: balance overflow")

	errNilStore = errors.New("bank: balance store not configured")
)

// BalanceStore persists stable asset balances and vault ownership.
type BalanceStore interface {
	Balance(addr crypto.Address) (uint64, error)
	SetBalance(addr crypto.Address, amount uint64) error
	// VaultOwner reports the authority registered for a pooled balance. The
	// boolean is false for ordinary holder-owned balances.
	VaultOwner(vault crypto.Address) (crypto.Address, bool, error)
	SetVaultOwner(vault, owner crypto.Address) error
}

// Ledger moves units of the stable asset between balance records. It holds
// no state of its own, so a Ledger built over a transactional store inherits
// that store's atomicity.
type Ledger struct {
	store BalanceStore
}

// NewLedger returns a ledger backed by store.
func NewLedger(store BalanceStore) *Ledger {
	return &Ledger{store: store}
}

// Authority returns the identity allowed to debit addr.
func (l *Ledger) Authority(addr crypto.Address) (crypto.Address, error) {
	if l == nil || l.store == nil {
		return crypto.Address{}, errNilStore
	}
	owner, isVault, err := l.store.VaultOwner(addr)
	if err != nil {
		return crypto.Address{}, err
	}
	if isVault {
		return owner, nil
	}
	return addr, nil
}

// Balance returns the current balance of addr.
func (l *Ledger) Balance(addr crypto.Address) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, errNilStore
	}
	return l.store.Balance(addr)
}

// Transfer debits from and credits to, provided authority controls from.
// A zero amount succeeds without touching either balance.
func (l *Ledger) Transfer(from, to, authority crypto.Address, amount uint64) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	owner, err := l.Authority(from)
	if err != nil {
		return err
	}
	if owner != authority {
		return fmt.Errorf("%w: %s", ErrUnauthorizedTransfer, from)
	}
	if amount == 0 {
		return nil
	}
	fromBal, err := l.store.Balance(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := l.store.Balance(to)
	if err != nil {
		return err
	}
	if toBal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	if err := l.store.SetBalance(from, fromBal-amount); err != nil {
		return err
	}
	return l.store.SetBalance(to, toBal+amount)
}

// Mint credits amount to addr out of thin air. It is reserved for genesis
// allocations.
func (l *Ledger) Mint(to crypto.Address, amount uint64) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	bal, err := l.store.Balance(to)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return l.store.SetBalance(to, bal+amount)
}

// RegisterVault marks vault as a pooled balance controlled by owner.
func (l *Ledger) RegisterVault(vault, owner crypto.Address) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if vault.IsZero() || owner.IsZero() {
		return errors.New("bank: vault and owner must be set")
	}
	return l.store.SetVaultOwner(vault, owner)
}
