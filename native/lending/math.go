package lending

import (
	"math"

	"github.com/holiman/uint256"
)

var basisPoints = uint256.NewInt(10_000)

// loanValue is principal plus one period of simple interest:
// amount + amount*rate/10000.
func loanValue(amount uint64, rateBps uint16) *uint256.Int {
	interest := uint256.NewInt(amount)
	interest.Mul(interest, uint256.NewInt(uint64(rateBps)))
	interest.Div(interest, basisPoints)
	return interest.Add(interest, uint256.NewInt(amount))
}

// currentLTV is loanValue*10000/collateral in basis points. A loan without
// collateral reports zero so only the overdue rule can liquidate it.
func currentLTV(value *uint256.Int, collateral uint64) *uint256.Int {
	if collateral == 0 {
		return uint256.NewInt(0)
	}
	ltv := new(uint256.Int).Mul(value, basisPoints)
	return ltv.Div(ltv, uint256.NewInt(collateral))
}

// saturate clamps v into the uint64 range for reporting.
func saturate(v *uint256.Int) uint64 {
	if v.IsUint64() {
		return v.Uint64()
	}
	return math.MaxUint64
}

func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// isOverdue reports whether a loan started at start is older than the
// overdue window at now.
func isOverdue(start, now int64) bool {
	return now-start > OverdueAfterSeconds
}

// LoanHealth reports a loan's value, LTV and eligibility at now.
func LoanHealth(loan *Loan, now int64) (value uint64, ltv uint64, liquidatable bool) {
	if loan == nil {
		return 0, 0, false
	}
	v := loanValue(loan.Amount, loan.InterestRate)
	l := currentLTV(v, loan.Collateral)
	breach := l.Cmp(uint256.NewInt(uint64(loan.LTVThreshold))) > 0
	eligible := loan.Status == LoanActive && (breach || isOverdue(loan.StartTime, now))
	return saturate(v), saturate(l), eligible
}
