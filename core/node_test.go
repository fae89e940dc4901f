package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stakelend/core/events"
	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/native/bank"
	nativecommon "stakelend/native/common"
	"stakelend/native/lending"
	"stakelend/storage"
)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) Emit(e events.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType())
	}
	return out
}

func testAddress(b byte) crypto.Address {
	var a crypto.Address
	a[0] = 0xF0
	a[crypto.AddressLength-1] = b
	return a
}

type harness struct {
	node   *Node
	oracle *crypto.OracleSigner
	admin  *crypto.PrivateKey
	alice  *crypto.PrivateKey
	bob    *crypto.PrivateKey
	events *collector
	now    time.Time
}

func (h *harness) addr(key *crypto.PrivateKey) crypto.Address { return key.PubKey().Address() }

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newHarness(t *testing.T, db storage.Database, pauses ...string) *harness {
	t.Helper()
	oracle, err := crypto.OracleSignerFromSeed(bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	node, err := NewNode(db, NodeConfig{
		ModuleAddress: testAddress(1),
		StakingVault:  testAddress(2),
		LendingPool:   testAddress(3),
		Pauses:        nativecommon.NewStaticPauses(pauses...),
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	h := &harness{
		node:   node,
		oracle: oracle,
		admin:  mustKey(t),
		alice:  mustKey(t),
		bob:    mustKey(t),
		events: &collector{},
		now:    time.Unix(1_700_000_000, 0),
	}
	node.SetEmitter(h.events)
	node.SetClock(func() time.Time { return h.now })
	applied, err := node.ApplyGenesis(context.Background(), []GenesisBalance{
		{Address: h.addr(h.alice), Amount: 10_000},
		{Address: h.addr(h.bob), Amount: 10_000},
		{Address: testAddress(3), Amount: 1_000_000},
	})
	if err != nil || !applied {
		t.Fatalf("genesis: applied=%v err=%v", applied, err)
	}
	return h
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	_, err := h.node.Initialize(context.Background(), h.addr(h.admin), lending.InitializeParams{
		ProtocolFeeRate:  50,
		LTVThreshold:     7000,
		MinStakeDuration: 3600,
		Oracle:           h.oracle.PublicKey(),
		OracleFee:        25,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func (h *harness) loanRequest(borrower crypto.Address, amount uint64, score uint8) lending.LoanRequest {
	return lending.LoanRequest{
		Amount:      amount,
		CreditScore: score,
		Signature:   h.oracle.Sign(lending.OracleMessage(borrower, amount, score, 25)),
	}
}

func (h *harness) balance(t *testing.T, addr crypto.Address) uint64 {
	t.Helper()
	account, err := h.node.Account(addr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	return account.Balance
}

func TestNewNodeRejectsOverlappingAddresses(t *testing.T) {
	_, err := NewNode(storage.NewMemDB(), NodeConfig{ModuleAddress: testAddress(1), StakingVault: testAddress(1), LendingPool: testAddress(3)})
	if !errors.Is(err, errInvalidAddresses) {
		t.Fatalf("expected address validation error, got %v", err)
	}
}

func TestGenesisAppliesOnce(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	applied, err := h.node.ApplyGenesis(context.Background(), []GenesisBalance{{Address: h.addr(h.alice), Amount: 1}})
	if err != nil {
		t.Fatalf("second genesis: %v", err)
	}
	if applied {
		t.Fatalf("genesis applied twice")
	}
	if got := h.balance(t, h.addr(h.alice)); got != 10_000 {
		t.Fatalf("unexpected balance %d", got)
	}
}

func TestRequestLoanFailureRollsBackFee(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	h.initialize(t)
	alice := h.addr(h.alice)
	if _, err := h.node.Stake(context.Background(), alice, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	published := len(h.events.types())

	_, err := h.node.RequestLoan(context.Background(), alice, h.loanRequest(alice, 10, 101))
	if !errors.Is(err, lending.ErrInvalidCreditScore) {
		t.Fatalf("expected invalid credit score, got %v", err)
	}
	if got := h.balance(t, alice); got != 9_000 {
		t.Fatalf("fee not rolled back, balance %d", got)
	}
	if got := h.balance(t, h.addr(h.admin)); got != 0 {
		t.Fatalf("treasury kept fee from failed request: %d", got)
	}
	if len(h.events.types()) != published {
		t.Fatalf("failed transition published events")
	}

	_, err = h.node.RequestLoan(context.Background(), alice, h.loanRequest(alice, 1001, 60))
	if !errors.Is(err, lending.ErrLoanExceedsCollateral) {
		t.Fatalf("expected loan exceeds collateral, got %v", err)
	}
	loan, err := h.node.RequestLoan(context.Background(), alice, h.loanRequest(alice, 1000, 60))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	if loan.InterestRate != 1000 {
		t.Fatalf("expected 10%% rate, got %d", loan.InterestRate)
	}
	if got := h.balance(t, alice); got != 9_000-25+1000 {
		t.Fatalf("unexpected borrower balance %d", got)
	}
	if got := h.balance(t, h.addr(h.admin)); got != 25 {
		t.Fatalf("unexpected treasury balance %d", got)
	}
}

func TestInsufficientFeeFundsRejectsBeforeCreditCheck(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	h.initialize(t)
	alice := h.addr(h.alice)
	if _, err := h.node.Stake(context.Background(), alice, 10_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	_, err := h.node.RequestLoan(context.Background(), alice, h.loanRequest(alice, 10, 101))
	if !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("expected fee transfer failure first, got %v", err)
	}
}

func TestLiquidationLifecycle(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	h.initialize(t)
	alice, bob := h.addr(h.alice), h.addr(h.bob)
	if _, err := h.node.Stake(context.Background(), alice, 1000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	healthy, err := h.node.RequestLoan(context.Background(), alice, h.loanRequest(alice, 600, 80))
	if err != nil {
		t.Fatalf("healthy loan: %v", err)
	}
	breached, err := h.node.RequestLoan(context.Background(), alice, h.loanRequest(alice, 700, 80))
	if err != nil {
		t.Fatalf("breached loan: %v", err)
	}

	if _, err := h.node.Liquidate(context.Background(), bob, alice, healthy.Index); !errors.Is(err, lending.ErrLoanNotLiquidatable) {
		t.Fatalf("expected healthy loan to be protected, got %v", err)
	}
	result, err := h.node.Liquidate(context.Background(), bob, alice, breached.Index)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.Seized != 500 || result.CurrentLTV != 7350 {
		t.Fatalf("unexpected liquidation %+v", result)
	}
	if got := h.balance(t, bob); got != 10_500 {
		t.Fatalf("liquidator balance %d", got)
	}
	if got := h.balance(t, testAddress(2)); got != 500 {
		t.Fatalf("vault balance %d", got)
	}
	if _, err := h.node.Liquidate(context.Background(), bob, alice, breached.Index); !errors.Is(err, lending.ErrLoanNotLiquidatable) {
		t.Fatalf("expected double liquidation to fail, got %v", err)
	}
	if got := h.balance(t, bob); got != 10_500 {
		t.Fatalf("double liquidation moved funds: %d", got)
	}

	global, err := h.node.GlobalState()
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if global.TotalStaked != 500 || global.TotalLoans != 2 {
		t.Fatalf("unexpected totals %+v", global)
	}
	user, err := h.node.UserState(alice)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if len(user.ActiveLoans) != 1 || user.ActiveLoans[0] != healthy.ID() {
		t.Fatalf("unexpected active loans %+v", user.ActiveLoans)
	}

	h.now = h.now.Add(91 * 24 * time.Hour)
	overdue, err := h.node.Liquidate(context.Background(), bob, alice, healthy.Index)
	if err != nil {
		t.Fatalf("overdue liquidation: %v", err)
	}
	if !overdue.Overdue || overdue.Seized != 500 {
		t.Fatalf("unexpected overdue liquidation %+v", overdue)
	}
	global, _ = h.node.GlobalState()
	if global.TotalStaked != 0 {
		t.Fatalf("expected total staked to drain to zero, got %d", global.TotalStaked)
	}

	published := h.events.types()
	if published[len(published)-1] != events.TypeLendingLoanLiquidated {
		t.Fatalf("expected liquidation event last, got %v", published)
	}
}

func TestSubmitTransactionChecksNonce(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	ctx := context.Background()

	initTx, err := types.NewTransaction(types.TxTypeLendingInitialize, 0, types.InitializePayload{
		Oracle: h.oracle.PublicKey(), ProtocolFeeRate: 10, LTVThreshold: 8000, MinStakeDuration: 60, OracleFee: 5,
	})
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := initTx.Sign(h.admin); err != nil {
		t.Fatalf("sign: %v", err)
	}
	receipt, err := h.node.SubmitTransaction(ctx, initTx)
	if err != nil {
		t.Fatalf("submit initialize: %v", err)
	}
	if receipt.Sender != h.addr(h.admin) || receipt.Type != "initialize" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if _, err := h.node.SubmitTransaction(ctx, initTx); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("expected replay to fail on nonce, got %v", err)
	}

	// a rejected transition does not consume the nonce
	overStake, _ := types.NewTransaction(types.TxTypeLendingStake, 0, types.StakePayload{Amount: 50_000})
	if err := overStake.Sign(h.alice); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.node.SubmitTransaction(ctx, overStake); !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	stake, _ := types.NewTransaction(types.TxTypeLendingStake, 0, types.StakePayload{Amount: 400})
	if err := stake.Sign(h.alice); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.node.SubmitTransaction(ctx, stake); err != nil {
		t.Fatalf("submit stake: %v", err)
	}
	account, err := h.node.Account(h.addr(h.alice))
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Nonce != 1 || account.Balance != 9_600 {
		t.Fatalf("unexpected account %+v", account)
	}

	unsigned, _ := types.NewTransaction(types.TxTypeLendingStake, 1, types.StakePayload{Amount: 1})
	if _, err := h.node.SubmitTransaction(ctx, unsigned); !errors.Is(err, types.ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}
}

func TestConcurrentStakesSerialise(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	h.initialize(t)
	alice, bob := h.addr(h.alice), h.addr(h.bob)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := h.node.Stake(context.Background(), alice, 3); err != nil {
				t.Errorf("alice stake: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := h.node.Stake(context.Background(), bob, 7); err != nil {
				t.Errorf("bob stake: %v", err)
			}
		}()
	}
	wg.Wait()

	global, err := h.node.GlobalState()
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if global.TotalStaked != 500 {
		t.Fatalf("expected total staked 500, got %d", global.TotalStaked)
	}
	if got := h.balance(t, testAddress(2)); got != 500 {
		t.Fatalf("vault balance %d", got)
	}
	user, err := h.node.UserState(alice)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user.StakedAmount != 150 {
		t.Fatalf("alice stake %d", user.StakedAmount)
	}
}

func TestPausedNodeRejectsTransitions(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), lending.ModuleName)
	_, err := h.node.Initialize(context.Background(), h.addr(h.admin), lending.InitializeParams{ProtocolFeeRate: 1, LTVThreshold: 1, MinStakeDuration: 1, OracleFee: 1})
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused module, got %v", err)
	}
	if _, err := h.node.GlobalState(); !errors.Is(err, lending.ErrNotInitialized) {
		t.Fatalf("expected no protocol state, got %v", err)
	}
}

func TestStatePersistsAcrossLevelDBReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	h := newHarness(t, db)
	h.initialize(t)
	if _, err := h.node.Stake(context.Background(), h.addr(h.alice), 250); err != nil {
		t.Fatalf("stake: %v", err)
	}
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer reopened.Close()
	node, err := NewNode(reopened, h.node.Config())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	applied, err := node.ApplyGenesis(context.Background(), nil)
	if err != nil || applied {
		t.Fatalf("genesis re-applied on restart: %v %v", applied, err)
	}
	user, err := node.UserState(h.addr(h.alice))
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user.StakedAmount != 250 {
		t.Fatalf("stake lost across restart: %d", user.StakedAmount)
	}
}
