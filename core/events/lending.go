package events

import (
	"strconv"

	"stakelend/core/types"
	"stakelend/crypto"
)

const (
	// TypeLendingInitialized is emitted once when the protocol parameters are
	// created.
	TypeLendingInitialized = "lending.initialized"
	// TypeLendingStaked is emitted for every stake deposit.
	TypeLendingStaked = "lending.staked"
	// TypeLendingLoanRequested is emitted when a loan is originated.
	TypeLendingLoanRequested = "lending.loanRequested"
	// TypeLendingLoanLiquidated is emitted when a loan is force-closed.
	TypeLendingLoanLiquidated = "lending.loanLiquidated"
)

// LendingInitialized captures the parameters the protocol was created with.
type LendingInitialized struct {
	Admin           crypto.Address
	Oracle          crypto.OracleKey
	ProtocolFeeRate uint16
	LTVThreshold    uint16
	OracleFee       uint64
}

// EventType satisfies the Event interface.
func (LendingInitialized) EventType() string { return TypeLendingInitialized }

// Event converts the structured payload into a broadcastable event.
func (e LendingInitialized) Event() *types.Event {
	return &types.Event{Type: TypeLendingInitialized, Attributes: map[string]string{
		"admin":           e.Admin.String(),
		"oracle":          e.Oracle.String(),
		"protocolFeeRate": strconv.FormatUint(uint64(e.ProtocolFeeRate), 10),
		"ltvThreshold":    strconv.FormatUint(uint64(e.LTVThreshold), 10),
		"oracleFee":       formatAmount(e.OracleFee),
	}}
}

// LendingStaked captures a deposit into the staking vault.
type LendingStaked struct {
	User        crypto.Address
	Amount      uint64
	NewStake    uint64
	TotalStaked uint64
}

// EventType satisfies the Event interface.
func (LendingStaked) EventType() string { return TypeLendingStaked }

// Event converts the structured payload into a broadcastable event.
func (e LendingStaked) Event() *types.Event {
	return &types.Event{Type: TypeLendingStaked, Attributes: map[string]string{
		"addr":        e.User.String(),
		"amount":      formatAmount(e.Amount),
		"stake":       formatAmount(e.NewStake),
		"totalStaked": formatAmount(e.TotalStaked),
	}}
}

// LendingLoanRequested captures an originated loan.
type LendingLoanRequested struct {
	Borrower     crypto.Address
	Index        uint64
	Amount       uint64
	Collateral   uint64
	CreditScore  uint8
	InterestRate uint16
	LTVThreshold uint16
	StartTime    int64
	OracleFee    uint64
}

// EventType satisfies the Event interface.
func (LendingLoanRequested) EventType() string { return TypeLendingLoanRequested }

// Event converts the structured payload into a broadcastable event.
func (e LendingLoanRequested) Event() *types.Event {
	return &types.Event{Type: TypeLendingLoanRequested, Attributes: map[string]string{
		"borrower":     e.Borrower.String(),
		"index":        strconv.FormatUint(e.Index, 10),
		"amount":       formatAmount(e.Amount),
		"collateral":   formatAmount(e.Collateral),
		"creditScore":  strconv.FormatUint(uint64(e.CreditScore), 10),
		"interestRate": strconv.FormatUint(uint64(e.InterestRate), 10),
		"ltvThreshold": strconv.FormatUint(uint64(e.LTVThreshold), 10),
		"startTime":    formatInt(e.StartTime),
		"oracleFee":    formatAmount(e.OracleFee),
	}}
}

// LendingLoanLiquidated captures a force-closed loan.
type LendingLoanLiquidated struct {
	Borrower   crypto.Address
	Index      uint64
	Liquidator crypto.Address
	Seized     uint64
	CurrentLTV uint64
	Overdue    bool
}

// EventType satisfies the Event interface.
func (LendingLoanLiquidated) EventType() string { return TypeLendingLoanLiquidated }

// Event converts the structured payload into a broadcastable event.
func (e LendingLoanLiquidated) Event() *types.Event {
	return &types.Event{Type: TypeLendingLoanLiquidated, Attributes: map[string]string{
		"borrower":   e.Borrower.String(),
		"index":      strconv.FormatUint(e.Index, 10),
		"liquidator": e.Liquidator.String(),
		"seized":     formatAmount(e.Seized),
		"currentLtv": formatAmount(e.CurrentLTV),
		"overdue":    strconv.FormatBool(e.Overdue),
	}}
}
