package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakelend/core/events"
	corestate "stakelend/core/state"
	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/native/bank"
	nativecommon "stakelend/native/common"
	"stakelend/native/lending"
	"stakelend/observability"
	"stakelend/storage"
)

// NodeConfig wires the protocol-controlled addresses and collaborators of a
// node.
type NodeConfig struct {
	// ModuleAddress is the authority over the staking vault and the lending
	// pool.
	ModuleAddress crypto.Address
	StakingVault  crypto.Address
	LendingPool   crypto.Address
	Pauses        nativecommon.PauseView
	Logger        *slog.Logger
}

// Node is the central controller. It serialises lending transitions, runs
// each one inside a single state transaction and publishes the resulting
// events only after the transaction commits.
type Node struct {
	db      storage.Database
	state   *corestate.Manager
	cfg     NodeConfig
	clock   func() time.Time
	verify  lending.Verifier
	emitter events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer

	mu sync.RWMutex
}

// Transition is the view handed to a state transition. Every component is
// bound to the same underlying transaction.
type Transition struct {
	Engine   *lending.Engine
	Bank     *bank.Ledger
	Accounts *corestate.Accounts
	Lending  *corestate.Lending
}

var errInvalidAddresses = errors.New("core: module, staking vault and lending pool addresses must be set and distinct")

// NewNode constructs a node over db.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	if cfg.ModuleAddress.IsZero() || cfg.StakingVault.IsZero() || cfg.LendingPool.IsZero() ||
		cfg.ModuleAddress == cfg.StakingVault || cfg.ModuleAddress == cfg.LendingPool || cfg.StakingVault == cfg.LendingPool {
		return nil, errInvalidAddresses
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		db:      db,
		state:   corestate.NewManager(db),
		cfg:     cfg,
		clock:   time.Now,
		verify:  crypto.VerifyOracle,
		emitter: events.NoopEmitter{},
		logger:  logger.With("component", "node"),
		tracer:  otel.Tracer("stakelend/core"),
	}, nil
}

// SetEmitter configures the sink receiving committed events.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.mu.Lock()
	n.emitter = emitter
	n.mu.Unlock()
}

// SetClock overrides the transition time source.
func (n *Node) SetClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	n.mu.Lock()
	n.clock = clock
	n.mu.Unlock()
}

// SetVerifier overrides the oracle signature check.
func (n *Node) SetVerifier(verify lending.Verifier) {
	if verify == nil {
		return
	}
	n.mu.Lock()
	n.verify = verify
	n.mu.Unlock()
}

// Config returns the node's address configuration.
func (n *Node) Config() NodeConfig { return n.cfg }

// Database exposes the backing store.
func (n *Node) Database() storage.Database { return n.db }

func (n *Node) newEngine() *lending.Engine {
	engine := lending.NewEngine(n.cfg.ModuleAddress, n.cfg.StakingVault, n.cfg.LendingPool)
	engine.SetClock(n.clock)
	engine.SetVerifier(n.verify)
	engine.SetPauses(n.cfg.Pauses)
	return engine
}

// Apply runs fn as one atomic transition: either every record write made
// through the Transition commits, or none does. Events emitted by fn are
// published after the commit.
func (n *Node) Apply(ctx context.Context, op string, fn func(*Transition) error) error {
	ctx, span := n.tracer.Start(ctx, "lending."+op)
	defer span.End()
	start := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := n.state.Begin()
	accounts := corestate.NewAccounts(tx)
	view := corestate.NewLending(tx)
	ledger := bank.NewLedger(accounts)
	buffer := &events.Buffer{}
	engine := n.newEngine()
	engine.SetState(view)
	engine.SetBank(ledger)
	engine.SetEmitter(buffer)

	err := fn(&Transition{Engine: engine, Bank: ledger, Accounts: accounts, Lending: view})
	if err == nil {
		err = tx.Commit()
	} else {
		tx.Discard()
	}
	observability.Lending().ObserveTransition(op, outcome(err), time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("lending.error_code", outcome(err)))
		return err
	}

	if global, ok, gerr := view.GetGlobalState(); gerr == nil && ok {
		observability.Lending().SetTotals(global.TotalStaked, global.TotalLoans)
	}
	published := buffer.Events()
	buffer.Flush(n.emitter)
	for _, ev := range published {
		observability.Events().RecordEvent(ev.EventType())
		switch payload := ev.(type) {
		case events.Transfer:
			observability.Events().RecordTransfer(payload.Reason)
		case events.LendingLoanLiquidated:
			observability.Lending().RecordSeized(payload.Seized)
		}
	}
	span.SetAttributes(attribute.Int("lending.events", len(published)))
	return nil
}

func outcome(err error) string {
	if err == nil {
		return ""
	}
	if code := lending.CodeOf(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, bank.ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, bank.ErrUnauthorizedTransfer):
		return "UnauthorizedTransfer"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "ModulePaused"
	case errors.Is(err, ErrNonceMismatch):
		return "NonceMismatch"
	}
	return "internal"
}

// View runs fn against the committed state. Views never observe a partially
// applied transition.
func (n *Node) View(fn func(*Transition) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	tx := n.state.Begin()
	defer tx.Discard()
	accounts := corestate.NewAccounts(tx)
	view := corestate.NewLending(tx)
	engine := n.newEngine()
	engine.SetState(view)
	return fn(&Transition{Engine: engine, Accounts: accounts, Lending: view})
}

// Initialize creates the protocol parameters with admin as the caller.
func (n *Node) Initialize(ctx context.Context, admin crypto.Address, params lending.InitializeParams) (*lending.GlobalState, error) {
	var global *lending.GlobalState
	err := n.Apply(ctx, "initialize", func(t *Transition) error {
		var err error
		global, err = t.Engine.Initialize(admin, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("Protocol initialized", "admin", admin.String(), "fee_rate", global.ProtocolFeeRate, "ltv_threshold", global.LTVThreshold)
	return global, nil
}

// Stake deposits amount from user into the staking vault.
func (n *Node) Stake(ctx context.Context, user crypto.Address, amount uint64) (*lending.UserState, error) {
	var account *lending.UserState
	err := n.Apply(ctx, "stake", func(t *Transition) error {
		var err error
		account, err = t.Engine.Stake(user, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("Staked", "user", user.String(), "amount", amount, "stake", account.StakedAmount)
	return account, nil
}

// RequestLoan originates a loan for borrower.
func (n *Node) RequestLoan(ctx context.Context, borrower crypto.Address, req lending.LoanRequest) (*lending.Loan, error) {
	var loan *lending.Loan
	err := n.Apply(ctx, "requestLoan", func(t *Transition) error {
		var err error
		loan, err = t.Engine.RequestLoan(borrower, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("Loan requested", "borrower", borrower.String(), "index", loan.Index, "amount", loan.Amount, "interest_rate", loan.InterestRate)
	return loan, nil
}

// Liquidate force-closes the named loan on behalf of liquidator.
func (n *Node) Liquidate(ctx context.Context, liquidator, borrower crypto.Address, index uint64) (*lending.Liquidation, error) {
	var result *lending.Liquidation
	err := n.Apply(ctx, "liquidate", func(t *Transition) error {
		var err error
		result, err = t.Engine.Liquidate(liquidator, borrower, index)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("Loan liquidated", "borrower", borrower.String(), "index", index, "liquidator", liquidator.String(), "seized", result.Seized)
	return result, nil
}

// GlobalState returns the committed protocol parameters.
func (n *Node) GlobalState() (*lending.GlobalState, error) {
	var global *lending.GlobalState
	err := n.View(func(t *Transition) error {
		var err error
		global, err = t.Engine.GlobalState()
		return err
	})
	return global, err
}

// UserState returns the committed user record of addr.
func (n *Node) UserState(addr crypto.Address) (*lending.UserState, error) {
	var user *lending.UserState
	err := n.View(func(t *Transition) error {
		var err error
		user, err = t.Engine.UserState(addr)
		return err
	})
	return user, err
}

// Loan returns a committed loan record.
func (n *Node) Loan(id lending.LoanID) (*lending.Loan, error) {
	var loan *lending.Loan
	err := n.View(func(t *Transition) error {
		var err error
		loan, err = t.Engine.Loan(id)
		return err
	})
	return loan, err
}

// Loans returns every loan originated by borrower.
func (n *Node) Loans(borrower crypto.Address) ([]*lending.Loan, error) {
	var loans []*lending.Loan
	err := n.View(func(t *Transition) error {
		var err error
		loans, err = t.Engine.Loans(borrower)
		return err
	})
	return loans, err
}

// Account returns the committed balance and nonce of addr.
func (n *Node) Account(addr crypto.Address) (*types.Account, error) {
	var account *types.Account
	err := n.View(func(t *Transition) error {
		var err error
		account, err = t.Accounts.GetAccount(addr)
		return err
	})
	return account, err
}

// Now returns the node's current transition time.
func (n *Node) Now() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.clock()
}

func (n *Node) String() string {
	return fmt.Sprintf("node(module=%s vault=%s pool=%s)", n.cfg.ModuleAddress, n.cfg.StakingVault, n.cfg.LendingPool)
}
