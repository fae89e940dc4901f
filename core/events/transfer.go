package events

import (
	"stakelend/core/types"
	"stakelend/crypto"
)

const (
	// TypeTransfer is emitted for every stable asset movement made by a
	// lending transition.
	TypeTransfer = "transfer.stable"

	TransferReasonStake       = "stake"
	TransferReasonOracleFee   = "oracleFee"
	TransferReasonPrincipal   = "loanPrincipal"
	TransferReasonLiquidation = "liquidation"
	TransferReasonGenesis     = "genesis"
)

type Transfer struct {
	From   crypto.Address
	To     crypto.Address
	Amount uint64
	Reason string
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	if !e.From.IsZero() {
		attrs["from"] = e.From.String()
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
