package lending

import "errors"

// Error is a caller-facing failure of a lending transition. Code is stable
// and safe to expose over the API.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return "lending: " + e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrInvalidCreditScore     = newError("InvalidCreditScore", "invalid credit score")
	ErrInsufficientStake      = newError("InsufficientStake", "insufficient stake amount")
	ErrStakeLockupActive      = newError("StakeLockupActive", "stake lockup period not met")
	ErrLoanExceedsCollateral  = newError("LoanExceedsCollateral", "loan amount exceeds collateral value")
	ErrLoanNotLiquidatable    = newError("LoanNotLiquidatable", "loan not eligible for liquidation")
	ErrInvalidOracleSignature = newError("InvalidOracleSignature", "oracle signature verification failed")
	ErrUnauthorized           = newError("Unauthorized", "unauthorized access")
	ErrInvalidProtocolParams  = newError("InvalidProtocolParams", "invalid protocol parameters")

	ErrAlreadyInitialized = newError("AlreadyInitialized", "protocol already initialized")
	ErrNotInitialized     = newError("NotInitialized", "protocol not initialized")
	ErrAccountNotFound    = newError("AccountNotFound", "user account not found")
	ErrLoanNotFound       = newError("LoanNotFound", "loan not found")
	ErrLoanCapacity       = newError("LoanCapacity", "active loan limit reached")
	ErrLoanExists         = newError("LoanExists", "loan record already exists for next index")
	ErrAmountOverflow     = newError("AmountOverflow", "amount overflow")
)

var (
	errNilState = errors.New("lending engine: state not configured")
	errNilBank  = errors.New("lending engine: value transfer not configured")
)

// CodeOf returns the stable code of a lending error, or "" for other errors.
func CodeOf(err error) string {
	var lendingErr *Error
	if errors.As(err, &lendingErr) {
		return lendingErr.Code
	}
	return ""
}
