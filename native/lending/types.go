package lending

import (
	"fmt"

	"stakelend/crypto"
)

// GlobalState is the protocol parameter singleton. It is created once by
// Initialize and afterwards only its running totals change.
type GlobalState struct {
	// Admin is the identity that created the singleton.
	Admin crypto.Address
	// Treasury receives oracle fees. It defaults to the admin.
	Treasury crypto.Address
	// Oracle verifies loan request attestations.
	Oracle crypto.OracleKey
	// TotalStaked is the aggregate stake less liquidated collateral.
	TotalStaked uint64
	// TotalLoans counts loans ever originated.
	TotalLoans uint64
	// ProtocolFeeRate is expressed in basis points and is below 1000.
	ProtocolFeeRate uint16
	// LTVThreshold is the loan-to-value ratio in basis points above which a
	// loan becomes liquidatable. It is snapshotted into each loan.
	LTVThreshold uint16
	// MinStakeDuration is the lockup in seconds. No transition enforces it.
	MinStakeDuration int64
	// OracleFee is charged to the borrower for every verified loan request.
	OracleFee uint64
}

// Clone returns a copy of the global state.
func (g *GlobalState) Clone() *GlobalState {
	if g == nil {
		return nil
	}
	clone := *g
	return &clone
}

// Tier is the credit band a user last borrowed in.
type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
)

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// LoanID addresses a loan record by borrower and sequence index.
type LoanID struct {
	Borrower crypto.Address
	Index    uint64
}

func (id LoanID) String() string {
	return fmt.Sprintf("%s/%d", id.Borrower, id.Index)
}

// UserState is the per-user stake and loan index record.
type UserState struct {
	Wallet         crypto.Address
	CreditScore    uint8
	Tier           Tier
	StakedAmount   uint64
	StakeStartTime int64
	// ActiveLoans lists open loans in origination order. Its length at
	// origination time is the new loan's index.
	ActiveLoans []LoanID
}

// Clone returns a deep copy of the user state.
func (u *UserState) Clone() *UserState {
	if u == nil {
		return nil
	}
	clone := *u
	clone.ActiveLoans = append([]LoanID(nil), u.ActiveLoans...)
	return &clone
}

func (u *UserState) loanPosition(id LoanID) int {
	for i, existing := range u.ActiveLoans {
		if existing == id {
			return i
		}
	}
	return -1
}

// removeLoan drops id from the active list, preserving order. Absent ids are
// ignored.
func (u *UserState) removeLoan(id LoanID) {
	pos := u.loanPosition(id)
	if pos < 0 {
		return
	}
	u.ActiveLoans = append(u.ActiveLoans[:pos], u.ActiveLoans[pos+1:]...)
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus uint8

const (
	LoanActive LoanStatus = iota
	LoanRepaid
	LoanLiquidated
	LoanDefaulted
)

func (s LoanStatus) String() string {
	switch s {
	case LoanActive:
		return "Active"
	case LoanRepaid:
		return "Repaid"
	case LoanLiquidated:
		return "Liquidated"
	case LoanDefaulted:
		return "Defaulted"
	default:
		return fmt.Sprintf("LoanStatus(%d)", uint8(s))
	}
}

// MarshalText renders the status name.
func (s LoanStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *LoanStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []LoanStatus{LoanActive, LoanRepaid, LoanLiquidated, LoanDefaulted} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("lending: unknown loan status %q", text)
}

// Loan is a single loan record. Collateral and LTVThreshold are snapshots
// taken at origination and never change afterwards.
type Loan struct {
	Borrower     crypto.Address
	Index        uint64
	Amount       uint64
	Collateral   uint64
	StartTime    int64
	InterestRate uint16
	LTVThreshold uint16
	Status       LoanStatus
}

// ID returns the loan's record address.
func (l *Loan) ID() LoanID {
	return LoanID{Borrower: l.Borrower, Index: l.Index}
}

// Clone returns a copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// Liquidation summarises a completed liquidation.
type Liquidation struct {
	Loan       *Loan
	Liquidator crypto.Address
	// Seized is the collateral moved from the staking vault to the liquidator.
	Seized     uint64
	LoanValue  uint64
	CurrentLTV uint64
	Overdue    bool
}
