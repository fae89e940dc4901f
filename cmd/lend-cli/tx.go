package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/native/lending"
)

func loadSigner(path string, stderr io.Writer) (*crypto.PrivateKey, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return nil, false
	}
	pass, err := loadPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error: load keystore: %v\n", err)
		return nil, false
	}
	return key, true
}

func submit(stdout, stderr io.Writer, key *crypto.PrivateKey, txType types.TxType, payload interface{}) int {
	api, ok := apiClient(stderr)
	if !ok {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	receipt, err := api.SignAndSubmit(ctx, key, txType, payload)
	if err != nil {
		return reportAPIError(stderr, err)
	}
	fmt.Fprintf(stdout, "Committed %s tx %s (nonce %d)\n", receipt.Type, receipt.TxHash, receipt.Nonce)
	if len(receipt.Result) > 0 {
		return printJSON(stdout, stderr, receipt.Result)
	}
	return 0
}

func runInitialize(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("initialize", stderr)
	var (
		keystore  string
		oracle    string
		feeRate   uint
		ltv       uint
		minStake  int64
		oracleFee uint64
	)
	fs.StringVar(&keystore, "keystore", "", "admin keystore")
	fs.StringVar(&oracle, "oracle", "", "hex encoded oracle public key")
	fs.UintVar(&feeRate, "fee-rate", 0, "protocol fee rate in basis points")
	fs.UintVar(&ltv, "ltv", 0, "liquidation LTV threshold in basis points")
	fs.Int64Var(&minStake, "min-stake", 0, "minimum stake duration in seconds")
	fs.Uint64Var(&oracleFee, "oracle-fee", 0, "fee charged per loan request")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	oracleKey, err := crypto.ParseOracleKey(oracle)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --oracle: %v\n", err)
		return 1
	}
	if feeRate >= lending.MaxProtocolFeeRate {
		fmt.Fprintf(stderr, "Error: --fee-rate must be below %d\n", lending.MaxProtocolFeeRate)
		return 1
	}
	if ltv >= lending.MaxLTVThreshold {
		fmt.Fprintf(stderr, "Error: --ltv must be below %d\n", lending.MaxLTVThreshold)
		return 1
	}
	key, ok := loadSigner(keystore, stderr)
	if !ok {
		return 1
	}
	return submit(stdout, stderr, key, types.TxTypeLendingInitialize, types.InitializePayload{
		Oracle:           oracleKey,
		ProtocolFeeRate:  uint16(feeRate),
		LTVThreshold:     uint16(ltv),
		MinStakeDuration: minStake,
		OracleFee:        oracleFee,
	})
}

func runStake(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("stake", stderr)
	keystore := fs.String("keystore", "", "staker keystore")
	amount := fs.Uint64("amount", 0, "amount to stake")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount must be positive")
		return 1
	}
	key, ok := loadSigner(*keystore, stderr)
	if !ok {
		return 1
	}
	return submit(stdout, stderr, key, types.TxTypeLendingStake, types.StakePayload{Amount: *amount})
}

func runRequestLoan(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("request-loan", stderr)
	var (
		keystore  string
		amount    uint64
		score     uint
		signature string
	)
	fs.StringVar(&keystore, "keystore", "", "borrower keystore")
	fs.Uint64Var(&amount, "amount", 0, "loan amount")
	fs.UintVar(&score, "score", 0, "attested credit score (0-100)")
	fs.StringVar(&signature, "signature", "", "hex encoded oracle signature")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if score > lending.MaxCreditScore {
		fmt.Fprintf(stderr, "Error: --score must be between 0 and %d\n", lending.MaxCreditScore)
		return 1
	}
	sig, err := hexutil.Decode(ensureHexPrefix(signature))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --signature: %v\n", err)
		return 1
	}
	key, ok := loadSigner(keystore, stderr)
	if !ok {
		return 1
	}
	return submit(stdout, stderr, key, types.TxTypeLendingRequestLoan, types.RequestLoanPayload{
		Amount:      amount,
		CreditScore: uint8(score),
		Signature:   sig,
	})
}

func runLiquidate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("liquidate", stderr)
	keystore := fs.String("keystore", "", "liquidator keystore")
	borrower := fs.String("borrower", "", "borrower address")
	index := fs.Uint64("index", 0, "loan index")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(*borrower))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --borrower: %v\n", err)
		return 1
	}
	key, ok := loadSigner(*keystore, stderr)
	if !ok {
		return 1
	}
	return submit(stdout, stderr, key, types.TxTypeLendingLiquidate, types.LiquidatePayload{
		Borrower: addr,
		Index:    *index,
	})
}
