package types

import (
	"bytes"
	"io"

	"stakelend/crypto"
)

// InitializePayload carries the protocol parameters of an initialize call.
type InitializePayload struct {
	Oracle           crypto.OracleKey `json:"oracle"`
	ProtocolFeeRate  uint16           `json:"protocolFeeRate"`
	LTVThreshold     uint16           `json:"ltvThreshold"`
	MinStakeDuration int64            `json:"minStakeDuration"`
	OracleFee        uint64           `json:"oracleFee"`
}

// StakePayload carries the deposit amount.
type StakePayload struct {
	Amount uint64 `json:"amount"`
}

// RequestLoanPayload carries the oracle attested loan request.
type RequestLoanPayload struct {
	Amount      uint64 `json:"amount"`
	CreditScore uint8  `json:"creditScore"`
	Signature   []byte `json:"signature"`
}

// LiquidatePayload names the loan being liquidated.
type LiquidatePayload struct {
	Borrower crypto.Address `json:"borrower"`
	Index    uint64         `json:"index"`
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
