package lending

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"stakelend/core/events"
	"stakelend/crypto"
	nativecommon "stakelend/native/common"
)

type mockState struct {
	global *GlobalState
	users  map[crypto.Address]*UserState
	loans  map[LoanID]*Loan
}

func newMockState() *mockState {
	return &mockState{
		users: make(map[crypto.Address]*UserState),
		loans: make(map[LoanID]*Loan),
	}
}

func (m *mockState) GetGlobalState() (*GlobalState, bool, error) {
	if m.global == nil {
		return nil, false, nil
	}
	return m.global.Clone(), true, nil
}

func (m *mockState) CreateGlobalState(state *GlobalState) error {
	if m.global != nil {
		return errors.New("exists")
	}
	m.global = state.Clone()
	return nil
}

func (m *mockState) PutGlobalState(state *GlobalState) error {
	m.global = state.Clone()
	return nil
}

func (m *mockState) GetUserState(addr crypto.Address) (*UserState, bool, error) {
	user, ok := m.users[addr]
	if !ok {
		return nil, false, nil
	}
	return user.Clone(), true, nil
}

func (m *mockState) PutUserState(user *UserState) error {
	m.users[user.Wallet] = user.Clone()
	return nil
}

func (m *mockState) GetLoan(id LoanID) (*Loan, bool, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, false, nil
	}
	return loan.Clone(), true, nil
}

func (m *mockState) CreateLoan(loan *Loan) error {
	if _, ok := m.loans[loan.ID()]; ok {
		return errors.New("exists")
	}
	m.loans[loan.ID()] = loan.Clone()
	return nil
}

func (m *mockState) PutLoan(loan *Loan) error {
	m.loans[loan.ID()] = loan.Clone()
	return nil
}

type transferCall struct {
	from, to, authority crypto.Address
	amount              uint64
}

type mockBank struct {
	balances map[crypto.Address]uint64
	calls    []transferCall
}

var errMockFunds = errors.New("mock bank: insufficient funds")

func (b *mockBank) Transfer(from, to, authority crypto.Address, amount uint64) error {
	if b.balances[from] < amount {
		return errMockFunds
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	b.calls = append(b.calls, transferCall{from: from, to: to, authority: authority, amount: amount})
	return nil
}

type recorder struct {
	events []events.Event
}

func (r *recorder) Emit(e events.Event) { r.events = append(r.events, e) }

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[crypto.AddressLength-1] = b
	return a
}

var (
	moduleAddr = addr(0xA0)
	vaultAddr  = addr(0xA1)
	poolAddr   = addr(0xA2)
	adminAddr  = addr(0x01)
	aliceAddr  = addr(0x02)
	bobAddr    = addr(0x03)
)

type fixture struct {
	engine  *Engine
	state   *mockState
	bank    *mockBank
	events  *recorder
	oracle  *crypto.OracleSigner
	now     time.Time
	advance func(time.Duration)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	oracle, err := crypto.OracleSignerFromSeed(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("oracle signer: %v", err)
	}
	f := &fixture{
		engine: NewEngine(moduleAddr, vaultAddr, poolAddr),
		state:  newMockState(),
		bank: &mockBank{balances: map[crypto.Address]uint64{
			aliceAddr: 10_000,
			bobAddr:   10_000,
			poolAddr:  1_000_000,
		}},
		events: &recorder{},
		oracle: oracle,
		now:    time.Unix(1_700_000_000, 0),
	}
	f.advance = func(d time.Duration) { f.now = f.now.Add(d) }
	f.engine.SetState(f.state)
	f.engine.SetBank(f.bank)
	f.engine.SetEmitter(f.events)
	f.engine.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) initialize(t *testing.T) *GlobalState {
	t.Helper()
	global, err := f.engine.Initialize(adminAddr, InitializeParams{
		ProtocolFeeRate:  100,
		LTVThreshold:     7000,
		MinStakeDuration: 86_400,
		Oracle:           f.oracle.PublicKey(),
		OracleFee:        10,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return global
}

func (f *fixture) attest(borrower crypto.Address, amount uint64, score uint8) []byte {
	fee := uint64(0)
	if f.state.global != nil {
		fee = f.state.global.OracleFee
	}
	return f.oracle.Sign(OracleMessage(borrower, amount, score, fee))
}

func (f *fixture) request(borrower crypto.Address, amount uint64, score uint8) (*Loan, error) {
	return f.engine.RequestLoan(borrower, LoanRequest{
		Amount:      amount,
		CreditScore: score,
		Signature:   f.attest(borrower, amount, score),
	})
}

func TestInitializeValidatesAndCreatesOnce(t *testing.T) {
	f := newFixture(t)
	invalid := []InitializeParams{
		{ProtocolFeeRate: 1000, LTVThreshold: 7000, MinStakeDuration: 1, OracleFee: 1},
		{ProtocolFeeRate: 0, LTVThreshold: 0, MinStakeDuration: 1, OracleFee: 1},
		{ProtocolFeeRate: 0, LTVThreshold: 10_000, MinStakeDuration: 1, OracleFee: 1},
		{ProtocolFeeRate: 0, LTVThreshold: 7000, MinStakeDuration: 0, OracleFee: 1},
		{ProtocolFeeRate: 0, LTVThreshold: 7000, MinStakeDuration: 1, OracleFee: 0},
	}
	for i, params := range invalid {
		if _, err := f.engine.Initialize(adminAddr, params); !errors.Is(err, ErrInvalidProtocolParams) {
			t.Fatalf("case %d: expected invalid params, got %v", i, err)
		}
		if f.state.global != nil {
			t.Fatalf("case %d: record created despite invalid params", i)
		}
	}

	global := f.initialize(t)
	if global.Admin != adminAddr || global.Treasury != adminAddr {
		t.Fatalf("expected admin to own and receive fees, got %+v", global)
	}
	if global.TotalStaked != 0 || global.TotalLoans != 0 {
		t.Fatalf("expected zero totals, got %+v", global)
	}
	if _, err := f.engine.Initialize(bobAddr, InitializeParams{ProtocolFeeRate: 1, LTVThreshold: 1, MinStakeDuration: 1, OracleFee: 1}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	if f.state.global.Admin != adminAddr {
		t.Fatalf("second initialize replaced the admin")
	}
}

func TestStakeAccumulates(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Stake(aliceAddr, 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	f.initialize(t)

	start := f.now.Unix()
	amounts := []uint64{100, 250, 650}
	var sum uint64
	for _, amount := range amounts {
		f.advance(time.Hour)
		user, err := f.engine.Stake(aliceAddr, amount)
		if err != nil {
			t.Fatalf("stake %d: %v", amount, err)
		}
		sum += amount
		if user.StakedAmount != sum {
			t.Fatalf("expected stake %d, got %d", sum, user.StakedAmount)
		}
	}
	if _, err := f.engine.Stake(bobAddr, 40); err != nil {
		t.Fatalf("bob stake: %v", err)
	}

	user := f.state.users[aliceAddr]
	if user.Wallet != aliceAddr {
		t.Fatalf("unexpected wallet %s", user.Wallet)
	}
	if user.StakeStartTime != start+3600 {
		t.Fatalf("stake start should be set by the first stake only, got %d", user.StakeStartTime)
	}
	if f.state.global.TotalStaked != sum+40 {
		t.Fatalf("expected total staked %d, got %d", sum+40, f.state.global.TotalStaked)
	}
	if f.bank.balances[vaultAddr] != sum+40 {
		t.Fatalf("vault holds %d, expected %d", f.bank.balances[vaultAddr], sum+40)
	}
	if f.bank.calls[0].authority != aliceAddr {
		t.Fatalf("stake must be authorised by the staker")
	}
}

func TestStakeInsufficientFundsLeavesRecordsUntouched(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 20_000); !errors.Is(err, errMockFunds) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if _, ok := f.state.users[aliceAddr]; ok {
		t.Fatalf("user record created despite failed transfer")
	}
	if f.state.global.TotalStaked != 0 {
		t.Fatalf("total staked changed on failure")
	}
}

func TestRequestLoanTierLimit(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}

	if _, err := f.request(aliceAddr, 1001, 60); !errors.Is(err, ErrLoanExceedsCollateral) {
		t.Fatalf("expected loan exceeds collateral, got %v", err)
	}
	loan, err := f.request(aliceAddr, 1000, 60)
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	if loan.InterestRate != 1000 {
		t.Fatalf("expected 10%% interest, got %d", loan.InterestRate)
	}
	if loan.Collateral != 1000 || loan.LTVThreshold != 7000 || loan.Status != LoanActive || loan.Index != 0 {
		t.Fatalf("unexpected loan %+v", loan)
	}
	user := f.state.users[aliceAddr]
	if len(user.ActiveLoans) != 1 || user.ActiveLoans[0] != loan.ID() {
		t.Fatalf("loan not recorded in active list: %+v", user.ActiveLoans)
	}
	if user.CreditScore != 60 || user.Tier != TierSilver {
		t.Fatalf("unexpected credit state %d/%s", user.CreditScore, user.Tier)
	}
	if f.state.global.TotalLoans != 1 {
		t.Fatalf("expected one loan, got %d", f.state.global.TotalLoans)
	}
	principal := f.bank.calls[len(f.bank.calls)-1]
	if principal.from != poolAddr || principal.to != aliceAddr || principal.authority != moduleAddr || principal.amount != 1000 {
		t.Fatalf("unexpected principal transfer %+v", principal)
	}
	if f.bank.balances[adminAddr] != 20 {
		t.Fatalf("expected treasury to collect two fees, got %d", f.bank.balances[adminAddr])
	}
}

func TestRequestLoanBands(t *testing.T) {
	cases := []struct {
		score uint8
		limit uint64
		rate  uint16
		tier  Tier
	}{
		{score: 0, limit: 500, rate: 1500, tier: TierBronze},
		{score: 50, limit: 500, rate: 1500, tier: TierBronze},
		{score: 51, limit: 1000, rate: 1000, tier: TierSilver},
		{score: 75, limit: 1000, rate: 1000, tier: TierSilver},
		{score: 76, limit: 2000, rate: 500, tier: TierGold},
		{score: 100, limit: 2000, rate: 500, tier: TierGold},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.initialize(t)
		if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
			t.Fatalf("stake: %v", err)
		}
		if _, err := f.request(aliceAddr, tc.limit+1, tc.score); !errors.Is(err, ErrLoanExceedsCollateral) {
			t.Fatalf("score %d: expected limit %d to hold, got %v", tc.score, tc.limit, err)
		}
		loan, err := f.request(aliceAddr, tc.limit, tc.score)
		if err != nil {
			t.Fatalf("score %d: %v", tc.score, err)
		}
		if loan.InterestRate != tc.rate || f.state.users[aliceAddr].Tier != tc.tier {
			t.Fatalf("score %d: got rate %d tier %s", tc.score, loan.InterestRate, f.state.users[aliceAddr].Tier)
		}
	}
}

func TestRequestLoanRejectsBadAttestation(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	calls := len(f.bank.calls)

	short := f.attest(aliceAddr, 100, 60)[:63]
	if _, err := f.engine.RequestLoan(aliceAddr, LoanRequest{Amount: 100, CreditScore: 60, Signature: short}); !errors.Is(err, ErrInvalidOracleSignature) {
		t.Fatalf("expected malformed signature rejection, got %v", err)
	}
	// attested for a different amount
	sig := f.attest(aliceAddr, 50, 60)
	if _, err := f.engine.RequestLoan(aliceAddr, LoanRequest{Amount: 100, CreditScore: 60, Signature: sig}); !errors.Is(err, ErrInvalidOracleSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if len(f.bank.calls) != calls {
		t.Fatalf("oracle fee charged before the attestation verified")
	}
}

func TestRequestLoanInvalidScoreAfterFee(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.request(aliceAddr, 10, 101); !errors.Is(err, ErrInvalidCreditScore) {
		t.Fatalf("expected invalid credit score, got %v", err)
	}
	last := f.bank.calls[len(f.bank.calls)-1]
	if last.to != adminAddr || last.amount != 10 {
		t.Fatalf("expected fee transfer to precede the credit check, got %+v", last)
	}
	if len(f.state.users[aliceAddr].ActiveLoans) != 0 || f.state.global.TotalLoans != 0 {
		t.Fatalf("records mutated on failed request")
	}
}

func TestRequestLoanAuthority(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.request(aliceAddr, 1, 60); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected missing account, got %v", err)
	}
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	sig := f.attest(aliceAddr, 100, 60)
	if _, err := f.engine.RequestLoan(bobAddr, LoanRequest{Account: aliceAddr, Amount: 100, CreditScore: 60, Signature: sig}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRequestLoanInjectedVerifier(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	var seen []byte
	f.engine.SetVerifier(func(pub, msg, sig []byte) bool {
		seen = append([]byte(nil), msg...)
		return true
	})
	if _, err := f.engine.RequestLoan(aliceAddr, LoanRequest{Amount: 7, CreditScore: 9, Signature: make([]byte, 64)}); err != nil {
		t.Fatalf("request loan: %v", err)
	}
	want := OracleMessage(aliceAddr, 7, 9, 10)
	if !bytes.Equal(seen, want) || len(seen) != OracleMessageLength {
		t.Fatalf("unexpected oracle message %x", seen)
	}
}

func TestRequestLoanCapacity(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	for i := 0; i < MaxLoansPerUser; i++ {
		if _, err := f.request(aliceAddr, 1, 60); err != nil {
			t.Fatalf("loan %d: %v", i, err)
		}
	}
	if _, err := f.request(aliceAddr, 1, 60); !errors.Is(err, ErrLoanCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func setupBreachedLoan(t *testing.T, f *fixture) *Loan {
	t.Helper()
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	loan, err := f.request(aliceAddr, 700, 80)
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	return loan
}

func TestLiquidateOnLTVBreach(t *testing.T) {
	f := newFixture(t)
	loan := setupBreachedLoan(t, f)
	if loan.InterestRate != 500 {
		t.Fatalf("expected gold rate, got %d", loan.InterestRate)
	}
	value, ltv, ok := LoanHealth(loan, f.now.Unix())
	if value != 735 || ltv != 7350 || !ok {
		t.Fatalf("unexpected health %d/%d/%v", value, ltv, ok)
	}

	result, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.Seized != 500 || result.Overdue || result.CurrentLTV != 7350 {
		t.Fatalf("unexpected liquidation %+v", result)
	}
	if f.state.loans[loan.ID()].Status != LoanLiquidated {
		t.Fatalf("loan status not updated")
	}
	if len(f.state.users[aliceAddr].ActiveLoans) != 0 {
		t.Fatalf("loan still listed as active")
	}
	if f.state.global.TotalStaked != 500 {
		t.Fatalf("expected total staked 500, got %d", f.state.global.TotalStaked)
	}
	if f.state.users[aliceAddr].StakedAmount != 1000 {
		t.Fatalf("user stake must not be reduced by liquidation")
	}
	seize := f.bank.calls[len(f.bank.calls)-1]
	if seize.from != vaultAddr || seize.to != bobAddr || seize.authority != moduleAddr {
		t.Fatalf("unexpected seizure transfer %+v", seize)
	}

	calls := len(f.bank.calls)
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index); !errors.Is(err, ErrLoanNotLiquidatable) {
		t.Fatalf("expected second liquidation to fail, got %v", err)
	}
	if len(f.bank.calls) != calls {
		t.Fatalf("second liquidation moved funds")
	}
}

func TestRestakeKeepsLoanSnapshots(t *testing.T) {
	f := newFixture(t)
	loan := setupBreachedLoan(t, f)
	if _, err := f.engine.Stake(aliceAddr, 3000); err != nil {
		t.Fatalf("restake: %v", err)
	}
	stored, err := f.engine.Loan(loan.ID())
	if err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	if stored.Collateral != 1000 || stored.LTVThreshold != 7000 {
		t.Fatalf("loan snapshots changed after restake: collateral=%d ltv=%d", stored.Collateral, stored.LTVThreshold)
	}
	if f.state.users[aliceAddr].StakedAmount != 4000 {
		t.Fatalf("expected stake 4000, got %d", f.state.users[aliceAddr].StakedAmount)
	}
	if _, ltv, ok := LoanHealth(stored, f.now.Unix()); ltv != 7350 || !ok {
		t.Fatalf("health must use the snapshot collateral, got ltv=%d liquidatable=%v", ltv, ok)
	}
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if f.bank.calls[len(f.bank.calls)-1].amount != 500 {
		t.Fatalf("seizure must be half the snapshot collateral")
	}
}

func TestLiquidateHealthyLoanFails(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	loan, err := f.request(aliceAddr, 600, 80)
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	before := *f.state.global
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index); !errors.Is(err, ErrLoanNotLiquidatable) {
		t.Fatalf("expected healthy loan to be protected, got %v", err)
	}
	if *f.state.global != before || f.state.loans[loan.ID()].Status != LoanActive {
		t.Fatalf("failed liquidation mutated records")
	}

	f.advance(time.Duration(OverdueAfterSeconds)*time.Second + time.Second)
	result, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index)
	if err != nil {
		t.Fatalf("overdue liquidation: %v", err)
	}
	if !result.Overdue || result.Seized != 500 {
		t.Fatalf("unexpected overdue liquidation %+v", result)
	}
}

func TestLiquidateExactlyNinetyDaysIsNotOverdue(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	loan, err := f.request(aliceAddr, 100, 80)
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	f.advance(time.Duration(OverdueAfterSeconds) * time.Second)
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index); !errors.Is(err, ErrLoanNotLiquidatable) {
		t.Fatalf("expected loan at the boundary to be protected, got %v", err)
	}
}

func TestLiquidateMissingRecords(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, 0); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected missing account, got %v", err)
	}
	if _, err := f.engine.Stake(aliceAddr, 10); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, 3); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected missing loan, got %v", err)
	}
}

func TestLiquidateGuardsTotalStaked(t *testing.T) {
	f := newFixture(t)
	loan := setupBreachedLoan(t, f)
	f.state.global.TotalStaked = 499
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected underflow guard, got %v", err)
	}
	if f.state.loans[loan.ID()].Status != LoanActive {
		t.Fatalf("loan closed despite guard")
	}
}

func TestLoanIndexCollisionAfterLiquidation(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.engine.Stake(aliceAddr, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	first, err := f.request(aliceAddr, 700, 80)
	if err != nil {
		t.Fatalf("first loan: %v", err)
	}
	if _, err := f.request(aliceAddr, 10, 80); err != nil {
		t.Fatalf("second loan: %v", err)
	}
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, first.Index); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if _, err := f.request(aliceAddr, 10, 80); !errors.Is(err, ErrLoanExists) {
		t.Fatalf("expected index collision, got %v", err)
	}
	loans, err := f.engine.Loans(aliceAddr)
	if err != nil {
		t.Fatalf("loans: %v", err)
	}
	if len(loans) != 2 || loans[0].Status != LoanLiquidated || loans[1].Status != LoanActive {
		t.Fatalf("unexpected loans %+v", loans)
	}
}

func TestPausedModuleRejectsTransitions(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPauses(nativecommon.NewStaticPauses(ModuleName))
	if _, err := f.engine.Initialize(adminAddr, InitializeParams{ProtocolFeeRate: 1, LTVThreshold: 1, MinStakeDuration: 1, OracleFee: 1}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused module, got %v", err)
	}
	if f.state.global != nil {
		t.Fatalf("paused initialize created a record")
	}
}

func TestTransitionsEmitEvents(t *testing.T) {
	f := newFixture(t)
	loan := setupBreachedLoan(t, f)
	if _, err := f.engine.Liquidate(bobAddr, aliceAddr, loan.Index); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	var types []string
	for _, ev := range f.events.events {
		if ev.EventType() == events.TypeTransfer {
			continue
		}
		types = append(types, ev.EventType())
	}
	want := []string{
		events.TypeLendingInitialized,
		events.TypeLendingStaked,
		events.TypeLendingLoanRequested,
		events.TypeLendingLoanLiquidated,
	}
	if len(types) != len(want) {
		t.Fatalf("unexpected events %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestErrorCodes(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrLoanExceedsCollateral)
	if CodeOf(wrapped) != "LoanExceedsCollateral" {
		t.Fatalf("unexpected code %q", CodeOf(wrapped))
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty code for foreign errors")
	}
}
