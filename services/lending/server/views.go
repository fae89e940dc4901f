package server

import (
	"encoding/json"
	"time"

	"stakelend/core"
	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/native/lending"
	"stakelend/services/lending/index"
)

// ProtocolView is the JSON form of the protocol parameters.
type ProtocolView struct {
	Admin            crypto.Address   `json:"admin"`
	Treasury         crypto.Address   `json:"treasury"`
	Oracle           crypto.OracleKey `json:"oracle"`
	TotalStaked      uint64           `json:"totalStaked"`
	TotalLoans       uint64           `json:"totalLoans"`
	ProtocolFeeRate  uint16           `json:"protocolFeeRate"`
	LTVThreshold     uint16           `json:"ltvThreshold"`
	MinStakeDuration int64            `json:"minStakeDuration"`
	OracleFee        uint64           `json:"oracleFee"`
}

// AccountView is the JSON form of a user account.
type AccountView struct {
	Wallet         crypto.Address `json:"wallet"`
	CreditScore    uint8          `json:"creditScore"`
	Tier           string         `json:"tier"`
	StakedAmount   uint64         `json:"stakedAmount"`
	StakeStartTime int64          `json:"stakeStartTime"`
	ActiveLoans    []uint64       `json:"activeLoans"`
}

// LoanView is the JSON form of a loan, with its health evaluated at the
// time of the request.
type LoanView struct {
	Borrower     crypto.Address `json:"borrower"`
	Index        uint64         `json:"index"`
	Amount       uint64         `json:"amount"`
	Collateral   uint64         `json:"collateral"`
	StartTime    int64          `json:"startTime"`
	InterestRate uint16         `json:"interestRate"`
	LTVThreshold uint16         `json:"ltvThreshold"`
	Status       string         `json:"status"`
	LoanValue    uint64         `json:"loanValue"`
	CurrentLTV   uint64         `json:"currentLtv"`
	Liquidatable bool           `json:"liquidatable"`
}

// LiquidationView is the JSON form of a liquidation result.
type LiquidationView struct {
	Loan       LoanView       `json:"loan"`
	Liquidator crypto.Address `json:"liquidator"`
	Seized     uint64         `json:"seized"`
	LoanValue  uint64         `json:"loanValue"`
	CurrentLTV uint64         `json:"currentLtv"`
	Overdue    bool           `json:"overdue"`
}

// BalanceView is the JSON form of a stable asset account.
type BalanceView struct {
	Address crypto.Address `json:"address"`
	Balance uint64         `json:"balance"`
	Nonce   uint64         `json:"nonce"`
}

// ActivityView is one history entry.
type ActivityView struct {
	Receipt    string          `json:"receipt"`
	Seq        uint64          `json:"seq"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Amount     uint64          `json:"amount"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ReceiptView is the JSON form of a committed transaction.
type ReceiptView struct {
	TxHash string         `json:"txHash"`
	Type   string         `json:"type"`
	Sender crypto.Address `json:"sender"`
	Nonce  uint64         `json:"nonce"`
	Result interface{}    `json:"result,omitempty"`
}

func protocolView(g *lending.GlobalState) ProtocolView {
	return ProtocolView{
		Admin:            g.Admin,
		Treasury:         g.Treasury,
		Oracle:           g.Oracle,
		TotalStaked:      g.TotalStaked,
		TotalLoans:       g.TotalLoans,
		ProtocolFeeRate:  g.ProtocolFeeRate,
		LTVThreshold:     g.LTVThreshold,
		MinStakeDuration: g.MinStakeDuration,
		OracleFee:        g.OracleFee,
	}
}

func accountView(u *lending.UserState) AccountView {
	view := AccountView{
		Wallet:         u.Wallet,
		CreditScore:    u.CreditScore,
		Tier:           u.Tier.String(),
		StakedAmount:   u.StakedAmount,
		StakeStartTime: u.StakeStartTime,
		ActiveLoans:    make([]uint64, 0, len(u.ActiveLoans)),
	}
	for _, id := range u.ActiveLoans {
		view.ActiveLoans = append(view.ActiveLoans, id.Index)
	}
	return view
}

func loanView(l *lending.Loan, now time.Time) LoanView {
	value, ltv, liquidatable := lending.LoanHealth(l, now.Unix())
	return LoanView{
		Borrower:     l.Borrower,
		Index:        l.Index,
		Amount:       l.Amount,
		Collateral:   l.Collateral,
		StartTime:    l.StartTime,
		InterestRate: l.InterestRate,
		LTVThreshold: l.LTVThreshold,
		Status:       l.Status.String(),
		LoanValue:    value,
		CurrentLTV:   ltv,
		Liquidatable: liquidatable,
	}
}

func liquidationView(l *lending.Liquidation, now time.Time) LiquidationView {
	return LiquidationView{
		Loan:       loanView(l.Loan, now),
		Liquidator: l.Liquidator,
		Seized:     l.Seized,
		LoanValue:  l.LoanValue,
		CurrentLTV: l.CurrentLTV,
		Overdue:    l.Overdue,
	}
}

func balanceView(addr crypto.Address, account *types.Account) BalanceView {
	return BalanceView{Address: addr, Balance: account.Balance, Nonce: account.Nonce}
}

func activityViews(rows []index.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(rows))
	for _, row := range rows {
		var attrs json.RawMessage
		if row.Attributes != "" {
			attrs = json.RawMessage(row.Attributes)
		}
		out = append(out, ActivityView{
			Receipt:    row.Receipt,
			Seq:        row.Seq,
			Type:       row.Type,
			Role:       row.Role,
			Amount:     row.Amount,
			Attributes: attrs,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out
}

func receiptView(r *core.Receipt, now time.Time) ReceiptView {
	view := ReceiptView{TxHash: r.TxHash, Type: r.Type, Sender: r.Sender, Nonce: r.Nonce}
	switch result := r.Result.(type) {
	case *lending.GlobalState:
		view.Result = protocolView(result)
	case *lending.UserState:
		view.Result = accountView(result)
	case *lending.Loan:
		view.Result = loanView(result, now)
	case *lending.Liquidation:
		view.Result = liquidationView(result, now)
	}
	return view
}
