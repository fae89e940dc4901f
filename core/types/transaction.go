package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"stakelend/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeLendingInitialize  TxType = 0x01
	TxTypeLendingStake       TxType = 0x02
	TxTypeLendingRequestLoan TxType = 0x03
	TxTypeLendingLiquidate   TxType = 0x04
)

var (
	ErrMissingSignature = errors.New("transaction: missing signature")
	ErrInvalidSignature = errors.New("transaction: invalid signature")
	ErrInvalidPayload   = errors.New("transaction: invalid payload")
)

func (t TxType) String() string {
	switch t {
	case TxTypeLendingInitialize:
		return "initialize"
	case TxTypeLendingStake:
		return "stake"
	case TxTypeLendingRequestLoan:
		return "requestLoan"
	case TxTypeLendingLiquidate:
		return "liquidate"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Valid reports whether t is a recognised transaction type.
func (t TxType) Valid() bool {
	return t >= TxTypeLendingInitialize && t <= TxTypeLendingLiquidate
}

// Transaction is a signed request to run one lending operation. The signer is
// the caller of the operation; Payload carries its JSON encoded arguments.
type Transaction struct {
	Type      TxType `json:"type"`
	Nonce     uint64 `json:"nonce"`
	Payload   []byte `json:"payload"`
	Signature []byte `json:"signature,omitempty"`
}

// Hash is the keccak256 digest of the rlp encoded unsigned fields.
func (tx *Transaction) Hash() ([]byte, error) {
	enc, err := rlp.EncodeToBytes([]interface{}{byte(tx.Type), tx.Nonce, tx.Payload})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(enc), nil
}

// Sign signs the transaction in place with key.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("transaction: nil signing key")
	}
	digest, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Sender recovers the address that signed the transaction.
func (tx *Transaction) Sender() (crypto.Address, error) {
	if len(tx.Signature) == 0 {
		return crypto.Address{}, ErrMissingSignature
	}
	digest, err := tx.Hash()
	if err != nil {
		return crypto.Address{}, err
	}
	addr, err := crypto.RecoverAddress(digest, tx.Signature)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return addr, nil
}

// NewTransaction encodes payload and returns an unsigned transaction.
func NewTransaction(txType TxType, nonce uint64, payload interface{}) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Transaction{Type: txType, Nonce: nonce, Payload: raw}, nil
}

// DecodePayload unmarshals the payload into dst, rejecting unknown fields.
func (tx *Transaction) DecodePayload(dst interface{}) error {
	dec := json.NewDecoder(bytesReader(tx.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidPayload, tx.Type, err)
	}
	return nil
}
