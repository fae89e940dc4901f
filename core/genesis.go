package core

import (
	"context"
	"fmt"

	"stakelend/core/events"
	"stakelend/crypto"
)

// GenesisBalance is an initial stable asset allocation.
type GenesisBalance struct {
	Address crypto.Address
	Amount  uint64
}

// ApplyGenesis registers the staking vault and lending pool as module
// controlled balances and mints the configured allocations. It runs once per
// database; later calls report false without touching state.
func (n *Node) ApplyGenesis(ctx context.Context, balances []GenesisBalance) (bool, error) {
	applied := false
	err := n.Apply(ctx, "genesis", func(t *Transition) error {
		done, err := t.Accounts.GenesisApplied()
		if err != nil || done {
			return err
		}
		if err := t.Bank.RegisterVault(n.cfg.StakingVault, n.cfg.ModuleAddress); err != nil {
			return err
		}
		if err := t.Bank.RegisterVault(n.cfg.LendingPool, n.cfg.ModuleAddress); err != nil {
			return err
		}
		for _, alloc := range balances {
			if alloc.Address.IsZero() {
				return fmt.Errorf("core: genesis allocation without address")
			}
			if err := t.Bank.Mint(alloc.Address, alloc.Amount); err != nil {
				return fmt.Errorf("core: genesis mint %s: %w", alloc.Address, err)
			}
		}
		if err := t.Accounts.MarkGenesisApplied(); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		n.emitGenesis(balances)
		n.logger.Info("genesis applied", "allocations", len(balances))
	}
	return applied, nil
}

func (n *Node) emitGenesis(balances []GenesisBalance) {
	n.mu.RLock()
	emitter := n.emitter
	n.mu.RUnlock()
	for _, alloc := range balances {
		emitter.Emit(events.Transfer{To: alloc.Address, Amount: alloc.Amount, Reason: events.TransferReasonGenesis})
	}
}
