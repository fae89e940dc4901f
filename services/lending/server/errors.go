package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stakelend/core"
	"stakelend/core/state"
	"stakelend/core/types"
	"stakelend/native/bank"
	nativecommon "stakelend/native/common"
	"stakelend/native/lending"
)

// codeInternal marks failures whose message is not safe to return.
const codeInternal = "Internal"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// txStatus maps a failed submission to a status code and stable error code.
func txStatus(err error) (int, string) {
	if code := lending.CodeOf(err); code != "" {
		switch {
		case errors.Is(err, lending.ErrUnauthorized):
			return http.StatusForbidden, code
		case errors.Is(err, lending.ErrInvalidOracleSignature):
			return http.StatusUnauthorized, code
		default:
			return http.StatusUnprocessableEntity, code
		}
	}
	switch {
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "InsufficientFunds"
	case errors.Is(err, bank.ErrUnauthorizedTransfer):
		return http.StatusForbidden, "UnauthorizedTransfer"
	case errors.Is(err, bank.ErrBalanceOverflow):
		return http.StatusUnprocessableEntity, "BalanceOverflow"
	case errors.Is(err, state.ErrRecordExists):
		return http.StatusConflict, "RecordExists"
	case errors.Is(err, core.ErrNonceMismatch):
		return http.StatusConflict, "NonceMismatch"
	case errors.Is(err, core.ErrUnknownTxType):
		return http.StatusBadRequest, "UnknownTxType"
	case errors.Is(err, types.ErrMissingSignature):
		return http.StatusBadRequest, "MissingSignature"
	case errors.Is(err, types.ErrInvalidSignature):
		return http.StatusBadRequest, "InvalidSignature"
	case errors.Is(err, types.ErrInvalidPayload):
		return http.StatusBadRequest, "InvalidPayload"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "ModulePaused"
	}
	return http.StatusInternalServerError, codeInternal
}

// queryStatus maps a failed read. Missing records are 404s.
func queryStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lending.ErrNotInitialized),
		errors.Is(err, lending.ErrAccountNotFound),
		errors.Is(err, lending.ErrLoanNotFound):
		return http.StatusNotFound, lending.CodeOf(err)
	}
	return http.StatusInternalServerError, codeInternal
}
