package lending

import (
	"encoding/binary"

	"stakelend/crypto"
)

// OracleMessageLength is the size of the canonical attestation message.
const OracleMessageLength = crypto.AddressLength + 8 + 1 + 8

// Verifier checks an attestation signature against the oracle key.
type Verifier func(pub, msg, sig []byte) bool

// OracleMessage builds the canonical bytes the oracle signs for a loan
// request: borrower address, little-endian amount, credit score byte and
// little-endian oracle fee.
func OracleMessage(borrower crypto.Address, amount uint64, creditScore uint8, oracleFee uint64) []byte {
	msg := make([]byte, 0, OracleMessageLength)
	msg = append(msg, borrower[:]...)
	msg = binary.LittleEndian.AppendUint64(msg, amount)
	msg = append(msg, creditScore)
	msg = binary.LittleEndian.AppendUint64(msg, oracleFee)
	return msg
}
