package state

import (
	"fmt"

	"stakelend/crypto"
	"stakelend/native/lending"
)

type storedGlobalState struct {
	Admin            crypto.Address
	Treasury         crypto.Address
	Oracle           crypto.OracleKey
	TotalStaked      uint64
	TotalLoans       uint64
	ProtocolFeeRate  uint16
	LTVThreshold     uint16
	MinStakeDuration uint64
	OracleFee        uint64
}

func newStoredGlobalState(g *lending.GlobalState) *storedGlobalState {
	return &storedGlobalState{
		Admin:            g.Admin,
		Treasury:         g.Treasury,
		Oracle:           g.Oracle,
		TotalStaked:      g.TotalStaked,
		TotalLoans:       g.TotalLoans,
		ProtocolFeeRate:  g.ProtocolFeeRate,
		LTVThreshold:     g.LTVThreshold,
		MinStakeDuration: clampUnix(g.MinStakeDuration),
		OracleFee:        g.OracleFee,
	}
}

func (s *storedGlobalState) toGlobalState() *lending.GlobalState {
	return &lending.GlobalState{
		Admin:            s.Admin,
		Treasury:         s.Treasury,
		Oracle:           s.Oracle,
		TotalStaked:      s.TotalStaked,
		TotalLoans:       s.TotalLoans,
		ProtocolFeeRate:  s.ProtocolFeeRate,
		LTVThreshold:     s.LTVThreshold,
		MinStakeDuration: int64(s.MinStakeDuration),
		OracleFee:        s.OracleFee,
	}
}

type storedLoanID struct {
	Borrower crypto.Address
	Index    uint64
}

type storedUserState struct {
	Wallet         crypto.Address
	CreditScore    uint8
	Tier           uint8
	StakedAmount   uint64
	StakeStartTime uint64
	ActiveLoans    []storedLoanID
}

func newStoredUserState(u *lending.UserState) *storedUserState {
	stored := &storedUserState{
		Wallet:         u.Wallet,
		CreditScore:    u.CreditScore,
		Tier:           uint8(u.Tier),
		StakedAmount:   u.StakedAmount,
		StakeStartTime: clampUnix(u.StakeStartTime),
		ActiveLoans:    make([]storedLoanID, len(u.ActiveLoans)),
	}
	for i, id := range u.ActiveLoans {
		stored.ActiveLoans[i] = storedLoanID{Borrower: id.Borrower, Index: id.Index}
	}
	return stored
}

func (s *storedUserState) toUserState() *lending.UserState {
	user := &lending.UserState{
		Wallet:         s.Wallet,
		CreditScore:    s.CreditScore,
		Tier:           lending.Tier(s.Tier),
		StakedAmount:   s.StakedAmount,
		StakeStartTime: int64(s.StakeStartTime),
	}
	if len(s.ActiveLoans) > 0 {
		user.ActiveLoans = make([]lending.LoanID, len(s.ActiveLoans))
		for i, id := range s.ActiveLoans {
			user.ActiveLoans[i] = lending.LoanID{Borrower: id.Borrower, Index: id.Index}
		}
	}
	return user
}

type storedLoan struct {
	Borrower     crypto.Address
	Index        uint64
	Amount       uint64
	Collateral   uint64
	StartTime    uint64
	InterestRate uint16
	LTVThreshold uint16
	Status       uint8
}

func newStoredLoan(l *lending.Loan) *storedLoan {
	return &storedLoan{
		Borrower:     l.Borrower,
		Index:        l.Index,
		Amount:       l.Amount,
		Collateral:   l.Collateral,
		StartTime:    clampUnix(l.StartTime),
		InterestRate: l.InterestRate,
		LTVThreshold: l.LTVThreshold,
		Status:       uint8(l.Status),
	}
}

func (s *storedLoan) toLoan() *lending.Loan {
	return &lending.Loan{
		Borrower:     s.Borrower,
		Index:        s.Index,
		Amount:       s.Amount,
		Collateral:   s.Collateral,
		StartTime:    int64(s.StartTime),
		InterestRate: s.InterestRate,
		LTVThreshold: s.LTVThreshold,
		Status:       lending.LoanStatus(s.Status),
	}
}

func clampUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// GlobalStateKey is the singleton protocol parameter address.
func GlobalStateKey() []byte { return RecordKey(labelGlobalState) }

// UserStateKey is the address of a user's stake and loan index record.
func UserStateKey(addr crypto.Address) []byte { return RecordKey(labelUserState, addr[:]) }

// LoanKey is the address of a single loan record.
func LoanKey(id lending.LoanID) []byte {
	return RecordKey(labelLoan, id.Borrower[:], Uint64Key(id.Index))
}

// Lending adapts a Tx to the lending engine's record access.
type Lending struct {
	tx *Tx
}

// NewLending binds a lending record view to tx.
func NewLending(tx *Tx) *Lending {
	return &Lending{tx: tx}
}

func (l *Lending) GetGlobalState() (*lending.GlobalState, bool, error) {
	var stored storedGlobalState
	ok, err := l.tx.Get(GlobalStateKey(), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toGlobalState(), true, nil
}

func (l *Lending) CreateGlobalState(g *lending.GlobalState) error {
	if g == nil {
		return fmt.Errorf("state: nil global state")
	}
	return l.tx.Create(GlobalStateKey(), newStoredGlobalState(g))
}

func (l *Lending) PutGlobalState(g *lending.GlobalState) error {
	if g == nil {
		return fmt.Errorf("state: nil global state")
	}
	return l.tx.Put(GlobalStateKey(), newStoredGlobalState(g))
}

func (l *Lending) GetUserState(addr crypto.Address) (*lending.UserState, bool, error) {
	var stored storedUserState
	ok, err := l.tx.Get(UserStateKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toUserState(), true, nil
}

func (l *Lending) PutUserState(u *lending.UserState) error {
	if u == nil {
		return fmt.Errorf("state: nil user state")
	}
	return l.tx.Put(UserStateKey(u.Wallet), newStoredUserState(u))
}

func (l *Lending) GetLoan(id lending.LoanID) (*lending.Loan, bool, error) {
	var stored storedLoan
	ok, err := l.tx.Get(LoanKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toLoan(), true, nil
}

func (l *Lending) CreateLoan(loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("state: nil loan")
	}
	return l.tx.Create(LoanKey(loan.ID()), newStoredLoan(loan))
}

func (l *Lending) PutLoan(loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("state: nil loan")
	}
	return l.tx.Put(LoanKey(loan.ID()), newStoredLoan(loan))
}
