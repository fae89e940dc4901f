package lending

import (
	"fmt"
	"time"

	"stakelend/core/events"
	"stakelend/crypto"
	nativecommon "stakelend/native/common"
)

const moduleName = "lending"

// ModuleName is the pause key guarding every lending transition.
const ModuleName = moduleName

type engineState interface {
	GetGlobalState() (*GlobalState, bool, error)
	CreateGlobalState(state *GlobalState) error
	PutGlobalState(state *GlobalState) error
	GetUserState(addr crypto.Address) (*UserState, bool, error)
	PutUserState(user *UserState) error
	GetLoan(id LoanID) (*Loan, bool, error)
	CreateLoan(loan *Loan) error
	PutLoan(loan *Loan) error
}

type valueTransfer interface {
	Transfer(from, to, authority crypto.Address, amount uint64) error
}

// Engine orchestrates the state transitions of the lending protocol. State
// and bank are rebound for every transition so the caller controls the
// atomic scope.
type Engine struct {
	state         engineState
	bank          valueTransfer
	moduleAddress crypto.Address
	stakingVault  crypto.Address
	lendingPool   crypto.Address
	clock         func() time.Time
	verify        Verifier
	pauses        nativecommon.PauseView
	emitter       events.Emitter
}

// NewEngine constructs a lending engine. moduleAddr is the authority over the
// staking vault and the lending pool.
func NewEngine(moduleAddr, stakingVault, lendingPool crypto.Address) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		stakingVault:  stakingVault,
		lendingPool:   lendingPool,
		clock:         time.Now,
		verify:        crypto.VerifyOracle,
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank wires the value-transfer service.
func (e *Engine) SetBank(bank valueTransfer) { e.bank = bank }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock overrides the time source used for stake and loan timestamps.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetVerifier overrides the oracle signature check.
func (e *Engine) SetVerifier(verify Verifier) {
	if e == nil || verify == nil {
		return
	}
	e.verify = verify
}

// SetEmitter configures the sink for lending events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }
func (e *Engine) StakingVault() crypto.Address  { return e.stakingVault }
func (e *Engine) LendingPool() crypto.Address   { return e.lendingPool }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) readyForTransition() error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.bank == nil {
		return errNilBank
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) now() int64 {
	return e.clock().Unix()
}

func (e *Engine) transfer(from, to, authority crypto.Address, amount uint64, reason string) error {
	if err := e.bank.Transfer(from, to, authority, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.Transfer{From: from, To: to, Amount: amount, Reason: reason})
	return nil
}

func (e *Engine) loadGlobal() (*GlobalState, error) {
	global, ok, err := e.state.GetGlobalState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return global, nil
}

// Initialize creates the protocol parameters with admin as both the admin
// and the treasury. It succeeds at most once per deployment.
func (e *Engine) Initialize(admin crypto.Address, params InitializeParams) (*GlobalState, error) {
	if err := e.readyForTransition(); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.GetGlobalState(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	global := &GlobalState{
		Admin:            admin,
		Treasury:         admin,
		Oracle:           params.Oracle,
		ProtocolFeeRate:  params.ProtocolFeeRate,
		LTVThreshold:     params.LTVThreshold,
		MinStakeDuration: params.MinStakeDuration,
		OracleFee:        params.OracleFee,
	}
	if err := e.state.CreateGlobalState(global); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LendingInitialized{
		Admin:           admin,
		Oracle:          global.Oracle,
		ProtocolFeeRate: global.ProtocolFeeRate,
		LTVThreshold:    global.LTVThreshold,
		OracleFee:       global.OracleFee,
	})
	return global.Clone(), nil
}

// Stake moves amount from the caller into the staking vault and credits it to
// the caller's user record, creating the record on first use.
func (e *Engine) Stake(user crypto.Address, amount uint64) (*UserState, error) {
	if err := e.readyForTransition(); err != nil {
		return nil, err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	account, ok, err := e.state.GetUserState(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		account = &UserState{Wallet: user}
	} else if account.Wallet != user {
		return nil, ErrUnauthorized
	}

	newStake, err := checkedAdd(account.StakedAmount, amount)
	if err != nil {
		return nil, err
	}
	newTotal, err := checkedAdd(global.TotalStaked, amount)
	if err != nil {
		return nil, err
	}

	if err := e.transfer(user, e.stakingVault, user, amount, events.TransferReasonStake); err != nil {
		return nil, err
	}

	if account.StakedAmount == 0 {
		account.Wallet = user
		account.StakeStartTime = e.now()
	}
	account.StakedAmount = newStake
	global.TotalStaked = newTotal

	if err := e.state.PutUserState(account); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobalState(global); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LendingStaked{
		User:        user,
		Amount:      amount,
		NewStake:    account.StakedAmount,
		TotalStaked: global.TotalStaked,
	})
	return account.Clone(), nil
}

// RequestLoan originates a loan against the stake of the named user record.
// The oracle fee is charged once the attestation verifies, ahead of the
// credit and amount checks; a later failure within the same transition
// unwinds it together with every other effect.
func (e *Engine) RequestLoan(borrower crypto.Address, req LoanRequest) (*Loan, error) {
	if err := e.readyForTransition(); err != nil {
		return nil, err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	accountAddr := req.Account
	if accountAddr.IsZero() {
		accountAddr = borrower
	}
	account, ok, err := e.state.GetUserState(accountAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	if account.Wallet != borrower {
		return nil, ErrUnauthorized
	}

	if len(account.ActiveLoans) >= MaxLoansPerUser {
		return nil, ErrLoanCapacity
	}
	id := LoanID{Borrower: borrower, Index: uint64(len(account.ActiveLoans))}
	if _, exists, err := e.state.GetLoan(id); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrLoanExists, id)
	}

	if len(req.Signature) != crypto.OracleSignatureLength {
		return nil, ErrInvalidOracleSignature
	}
	msg := OracleMessage(account.Wallet, req.Amount, req.CreditScore, global.OracleFee)
	if !e.verify(global.Oracle[:], msg, req.Signature) {
		return nil, ErrInvalidOracleSignature
	}

	if err := e.transfer(borrower, global.Treasury, borrower, global.OracleFee, events.TransferReasonOracleFee); err != nil {
		return nil, err
	}

	tier, err := TierForScore(req.CreditScore)
	if err != nil {
		return nil, err
	}
	maxLoan := tier.MaxLoan(account.StakedAmount)
	if maxLoan.IsUint64() && req.Amount > maxLoan.Uint64() {
		return nil, fmt.Errorf("%w: requested %d, limit %d", ErrLoanExceedsCollateral, req.Amount, maxLoan.Uint64())
	}

	totalLoans, err := checkedAdd(global.TotalLoans, 1)
	if err != nil {
		return nil, err
	}

	if err := e.transfer(e.lendingPool, borrower, e.moduleAddress, req.Amount, events.TransferReasonPrincipal); err != nil {
		return nil, err
	}

	loan := &Loan{
		Borrower:     borrower,
		Index:        id.Index,
		Amount:       req.Amount,
		Collateral:   account.StakedAmount,
		StartTime:    e.now(),
		InterestRate: tier.InterestRateBps,
		LTVThreshold: global.LTVThreshold,
		Status:       LoanActive,
	}
	if err := e.state.CreateLoan(loan); err != nil {
		return nil, err
	}

	account.ActiveLoans = append(account.ActiveLoans, id)
	account.CreditScore = req.CreditScore
	account.Tier = tier.Tier
	global.TotalLoans = totalLoans

	if err := e.state.PutUserState(account); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobalState(global); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LendingLoanRequested{
		Borrower:     borrower,
		Index:        loan.Index,
		Amount:       loan.Amount,
		Collateral:   loan.Collateral,
		CreditScore:  req.CreditScore,
		InterestRate: loan.InterestRate,
		LTVThreshold: loan.LTVThreshold,
		StartTime:    loan.StartTime,
		OracleFee:    global.OracleFee,
	})
	return loan.Clone(), nil
}

// Liquidate force-closes an eligible loan. Half of the loan's collateral
// snapshot moves from the staking vault to the liquidator.
func (e *Engine) Liquidate(liquidator, borrower crypto.Address, index uint64) (*Liquidation, error) {
	if err := e.readyForTransition(); err != nil {
		return nil, err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	account, ok, err := e.state.GetUserState(borrower)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	if account.Wallet != borrower {
		return nil, ErrUnauthorized
	}
	id := LoanID{Borrower: borrower, Index: index}
	loan, ok, err := e.state.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	if loan.Status != LoanActive {
		return nil, fmt.Errorf("%w: loan %s is %s", ErrLoanNotLiquidatable, id, loan.Status)
	}

	now := e.now()
	value, ltv, eligible := LoanHealth(loan, now)
	if !eligible {
		return nil, fmt.Errorf("%w: ltv %d within threshold %d", ErrLoanNotLiquidatable, ltv, loan.LTVThreshold)
	}

	seized := loan.Collateral / 2
	if seized > global.TotalStaked {
		return nil, fmt.Errorf("%w: seizure %d exceeds total staked %d", ErrInsufficientStake, seized, global.TotalStaked)
	}

	if err := e.transfer(e.stakingVault, liquidator, e.moduleAddress, seized, events.TransferReasonLiquidation); err != nil {
		return nil, err
	}

	loan.Status = LoanLiquidated
	account.removeLoan(id)
	global.TotalStaked -= seized

	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.state.PutUserState(account); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobalState(global); err != nil {
		return nil, err
	}

	result := &Liquidation{
		Loan:       loan.Clone(),
		Liquidator: liquidator,
		Seized:     seized,
		LoanValue:  value,
		CurrentLTV: ltv,
		Overdue:    isOverdue(loan.StartTime, now),
	}
	e.emitter.Emit(events.LendingLoanLiquidated{
		Borrower:   borrower,
		Index:      index,
		Liquidator: liquidator,
		Seized:     seized,
		CurrentLTV: ltv,
		Overdue:    result.Overdue,
	})
	return result, nil
}

// GlobalState returns the protocol parameters.
func (e *Engine) GlobalState() (*GlobalState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadGlobal()
}

// UserState returns the user record of addr.
func (e *Engine) UserState(addr crypto.Address) (*UserState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	account, ok, err := e.state.GetUserState(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// Loan returns a single loan record.
func (e *Engine) Loan(id LoanID) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, ok, err := e.state.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// Loans returns every loan ever originated by borrower, in index order.
// Indices are allocated densely from zero so the scan stops at the first gap.
func (e *Engine) Loans(borrower crypto.Address) ([]*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var loans []*Loan
	for index := uint64(0); ; index++ {
		loan, ok, err := e.state.GetLoan(LoanID{Borrower: borrower, Index: index})
		if err != nil {
			return nil, err
		}
		if !ok {
			return loans, nil
		}
		loans = append(loans, loan)
	}
}
