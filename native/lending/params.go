package lending

import (
	"fmt"

	"stakelend/crypto"
)

const (
	// MaxProtocolFeeRate bounds ProtocolFeeRate (exclusive).
	MaxProtocolFeeRate = 1000
	// MaxLTVThreshold bounds LTVThreshold (exclusive).
	MaxLTVThreshold = 10_000
	// MaxCreditScore is the highest attestable credit score.
	MaxCreditScore = 100
	// MaxLoansPerUser caps UserState.ActiveLoans.
	MaxLoansPerUser = 10
	// OverdueAfterSeconds is the loan age after which a loan may be liquidated
	// regardless of its LTV.
	OverdueAfterSeconds int64 = 90 * 24 * 60 * 60
)

// InitializeParams are the inputs of Initialize.
type InitializeParams struct {
	ProtocolFeeRate  uint16
	LTVThreshold     uint16
	MinStakeDuration int64
	Oracle           crypto.OracleKey
	OracleFee        uint64
}

// Validate enforces the parameter ranges accepted at initialisation.
func (p InitializeParams) Validate() error {
	if p.ProtocolFeeRate >= MaxProtocolFeeRate {
		return fmt.Errorf("%w: protocol fee rate %d must be below %d", ErrInvalidProtocolParams, p.ProtocolFeeRate, MaxProtocolFeeRate)
	}
	if p.LTVThreshold == 0 || p.LTVThreshold >= MaxLTVThreshold {
		return fmt.Errorf("%w: ltv threshold %d must be within (0, %d)", ErrInvalidProtocolParams, p.LTVThreshold, MaxLTVThreshold)
	}
	if p.MinStakeDuration <= 0 {
		return fmt.Errorf("%w: min stake duration must be positive", ErrInvalidProtocolParams)
	}
	if p.OracleFee == 0 {
		return fmt.Errorf("%w: oracle fee must be positive", ErrInvalidProtocolParams)
	}
	return nil
}

// LoanRequest are the inputs of RequestLoan.
type LoanRequest struct {
	// Account names the user record presented by the caller. The zero
	// address selects the caller's own record.
	Account     crypto.Address
	Amount      uint64
	CreditScore uint8
	Signature   []byte
}
