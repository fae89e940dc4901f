package lending

import (
	"fmt"

	"github.com/holiman/uint256"
)

// CreditTier is a credit score band. The band sets both how much can be
// borrowed against the stake and the fixed interest rate of the loan.
type CreditTier struct {
	Tier     Tier
	MinScore uint8
	MaxScore uint8
	// LimitNum/LimitDen scale the staked amount into the borrowing limit.
	LimitNum uint64
	LimitDen uint64
	// InterestRateBps is recorded on every loan originated in the band.
	InterestRateBps uint16
}

var creditTiers = [...]CreditTier{
	{Tier: TierBronze, MinScore: 0, MaxScore: 50, LimitNum: 1, LimitDen: 2, InterestRateBps: 1500},
	{Tier: TierSilver, MinScore: 51, MaxScore: 75, LimitNum: 1, LimitDen: 1, InterestRateBps: 1000},
	{Tier: TierGold, MinScore: 76, MaxScore: MaxCreditScore, LimitNum: 2, LimitDen: 1, InterestRateBps: 500},
}

// TierForScore returns the band containing score.
func TierForScore(score uint8) (CreditTier, error) {
	for _, tier := range creditTiers {
		if score >= tier.MinScore && score <= tier.MaxScore {
			return tier, nil
		}
	}
	return CreditTier{}, fmt.Errorf("%w: %d", ErrInvalidCreditScore, score)
}

// MaxLoan is the borrowing limit for the given stake.
func (t CreditTier) MaxLoan(staked uint64) *uint256.Int {
	limit := uint256.NewInt(staked)
	limit.Mul(limit, uint256.NewInt(t.LimitNum))
	return limit.Div(limit, uint256.NewInt(t.LimitDen))
}
