package state

import (
	"stakelend/core/types"
	"stakelend/crypto"
)

type storedVault struct {
	Owner crypto.Address
}

func accountKey(addr crypto.Address) []byte {
	return RecordKey(labelAccount, addr[:])
}

func vaultKey(addr crypto.Address) []byte {
	return RecordKey(labelVault, addr[:])
}

// Accounts exposes account records (balance and nonce) and vault ownership
// inside a Tx. It satisfies bank.BalanceStore.
type Accounts struct {
	tx *Tx
}

// NewAccounts binds an account view to tx.
func NewAccounts(tx *Tx) *Accounts {
	return &Accounts{tx: tx}
}

// GetAccount returns the account stored for addr, or a zero account.
func (a *Accounts) GetAccount(addr crypto.Address) (*types.Account, error) {
	account := new(types.Account)
	if _, err := a.tx.Get(accountKey(addr), account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount stores account under addr.
func (a *Accounts) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		account = new(types.Account)
	}
	return a.tx.Put(accountKey(addr), account)
}

// Balance implements bank.BalanceStore.
func (a *Accounts) Balance(addr crypto.Address) (uint64, error) {
	account, err := a.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// SetBalance implements bank.BalanceStore.
func (a *Accounts) SetBalance(addr crypto.Address, amount uint64) error {
	account, err := a.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = amount
	return a.PutAccount(addr, account)
}

// Nonce returns the next expected transaction nonce for addr.
func (a *Accounts) Nonce(addr crypto.Address) (uint64, error) {
	account, err := a.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.Nonce, nil
}

// BumpNonce increments the stored nonce of addr.
func (a *Accounts) BumpNonce(addr crypto.Address) error {
	account, err := a.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Nonce++
	return a.PutAccount(addr, account)
}

// VaultOwner implements bank.BalanceStore.
func (a *Accounts) VaultOwner(vault crypto.Address) (crypto.Address, bool, error) {
	var stored storedVault
	ok, err := a.tx.Get(vaultKey(vault), &stored)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	return stored.Owner, true, nil
}

// SetVaultOwner implements bank.BalanceStore.
func (a *Accounts) SetVaultOwner(vault, owner crypto.Address) error {
	return a.tx.Put(vaultKey(vault), &storedVault{Owner: owner})
}

type storedGenesis struct {
	Applied bool
}

// GenesisApplied reports whether genesis allocations were already written.
func (a *Accounts) GenesisApplied() (bool, error) {
	return a.tx.Has(RecordKey(labelGenesis))
}

// MarkGenesisApplied records that genesis allocations were written. It fails
// with ErrRecordExists on a second call.
func (a *Accounts) MarkGenesisApplied() error {
	return a.tx.Create(RecordKey(labelGenesis), &storedGenesis{Applied: true})
}
