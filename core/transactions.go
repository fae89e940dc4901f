package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/native/lending"
	"stakelend/observability/logging"
)

var (
	// ErrNonceMismatch is returned when a transaction's nonce is not the
	// sender's next expected nonce.
	ErrNonceMismatch = errors.New("core: nonce mismatch")
	// ErrUnknownTxType is returned for unrecognised transaction types.
	ErrUnknownTxType = errors.New("core: unknown transaction type")
)

// Receipt describes a committed transaction.
type Receipt struct {
	TxHash string         `json:"txHash"`
	Type   string         `json:"type"`
	Sender crypto.Address `json:"sender"`
	Nonce  uint64         `json:"nonce"`
	Result interface{}    `json:"result"`
}

// SubmitTransaction verifies the envelope signature, checks and consumes the
// sender's nonce, and runs the requested lending operation. The nonce is only
// consumed when the operation commits.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, errors.New("core: nil transaction")
	}
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTxType, byte(tx.Type))
	}
	sender, err := tx.Sender()
	if err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	receipt := &Receipt{
		TxHash: "0x" + hex.EncodeToString(hash),
		Type:   tx.Type.String(),
		Sender: sender,
		Nonce:  tx.Nonce,
	}

	err = n.Apply(ctx, tx.Type.String(), func(t *Transition) error {
		expected, err := t.Accounts.Nonce(sender)
		if err != nil {
			return err
		}
		if tx.Nonce != expected {
			return fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, expected, tx.Nonce)
		}
		if err := t.Accounts.BumpNonce(sender); err != nil {
			return err
		}
		result, err := dispatch(t.Engine, sender, tx)
		if err != nil {
			return err
		}
		receipt.Result = result
		return nil
	})
	if err != nil {
		n.logger.Warn("lending transition rejected",
			"op", receipt.Type,
			"sender", sender.String(),
			"tx_hash", receipt.TxHash,
			"signature", logging.MaskSignature(tx.Signature),
			"error", err.Error())
		return nil, err
	}
	n.logger.Info("lending transition committed",
		"op", receipt.Type,
		"sender", sender.String(),
		"tx_hash", receipt.TxHash)
	return receipt, nil
}

func dispatch(engine *lending.Engine, sender crypto.Address, tx *types.Transaction) (interface{}, error) {
	switch tx.Type {
	case types.TxTypeLendingInitialize:
		var payload types.InitializePayload
		if err := tx.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return engine.Initialize(sender, lending.InitializeParams{
			ProtocolFeeRate:  payload.ProtocolFeeRate,
			LTVThreshold:     payload.LTVThreshold,
			MinStakeDuration: payload.MinStakeDuration,
			Oracle:           payload.Oracle,
			OracleFee:        payload.OracleFee,
		})
	case types.TxTypeLendingStake:
		var payload types.StakePayload
		if err := tx.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return engine.Stake(sender, payload.Amount)
	case types.TxTypeLendingRequestLoan:
		var payload types.RequestLoanPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return engine.RequestLoan(sender, lending.LoanRequest{
			Amount:      payload.Amount,
			CreditScore: payload.CreditScore,
			Signature:   payload.Signature,
		})
	case types.TxTypeLendingLiquidate:
		var payload types.LiquidatePayload
		if err := tx.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return engine.Liquidate(sender, payload.Borrower, payload.Index)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTxType, byte(tx.Type))
	}
}
