package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stakelend/cmd/internal/passphrase"
	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/services/lending/client"
	"stakelend/services/lending/server"
)

const defaultEndpoint = "http://127.0.0.1:8645"

// lendingAPI is the subset of the service client the commands use.
type lendingAPI interface {
	SignAndSubmit(ctx context.Context, key *crypto.PrivateKey, txType types.TxType, payload interface{}) (*client.Receipt, error)
	Protocol(ctx context.Context) (*server.ProtocolView, error)
	Account(ctx context.Context, addr crypto.Address) (*server.AccountView, error)
	Loans(ctx context.Context, borrower crypto.Address) ([]server.LoanView, error)
	Loan(ctx context.Context, borrower crypto.Address, index uint64) (*server.LoanView, error)
	Balance(ctx context.Context, addr crypto.Address) (*server.BalanceView, error)
	History(ctx context.Context, addr crypto.Address, limit int) ([]server.ActivityView, error)
}

var (
	apiEndpoint = envOr("LEND_API_URL", defaultEndpoint)
	apiToken    = os.Getenv("LEND_API_TOKEN")

	newAPI = func(endpoint, token string) (lendingAPI, error) {
		return client.New(endpoint, client.WithToken(token))
	}
	loadPassphrase = func() (string, error) {
		return passphrase.NewSource(passphrase.DefaultEnv).Get()
	}
	requestTimeout = 30 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	command, rest := args[0], args[1:]
	switch command {
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "address":
		return runAddress(rest, stdout, stderr)
	case "oracle-keygen":
		return runOracleKeygen(rest, stdout, stderr)
	case "oracle-sign":
		return runOracleSign(rest, stdout, stderr)
	case "initialize":
		return runInitialize(rest, stdout, stderr)
	case "stake":
		return runStake(rest, stdout, stderr)
	case "request-loan":
		return runRequestLoan(rest, stdout, stderr)
	case "liquidate":
		return runLiquidate(rest, stdout, stderr)
	case "protocol":
		return runProtocol(rest, stdout, stderr)
	case "account":
		return runAccount(rest, stdout, stderr)
	case "loans":
		return runLoans(rest, stdout, stderr)
	case "loan":
		return runLoan(rest, stdout, stderr)
	case "balance":
		return runBalance(rest, stdout, stderr)
	case "history":
		return runHistory(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

// applyGlobalFlags consumes leading --api and --token flags.
func applyGlobalFlags(args []string) ([]string, error) {
	for len(args) > 0 {
		arg := args[0]
		var name, value string
		switch {
		case arg == "--api" || arg == "--token":
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			name, value = arg, args[1]
			args = args[2:]
		case strings.HasPrefix(arg, "--api="):
			name, value = "--api", strings.TrimPrefix(arg, "--api=")
			args = args[1:]
		case strings.HasPrefix(arg, "--token="):
			name, value = "--token", strings.TrimPrefix(arg, "--token=")
			args = args[1:]
		default:
			return args, nil
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		if name == "--api" {
			apiEndpoint = value
		} else {
			apiToken = value
		}
	}
	return args, nil
}

func usage() string {
	return `Usage: lend-cli [--api URL] [--token JWT] <command> [flags]

Keys:
  keygen --out <keystore>              create an encrypted account keystore
  address --keystore <keystore>        print the keystore address
  oracle-keygen                        create an oracle signing seed
  oracle-sign --seed <hex> --borrower <addr> --amount <n> --score <0-100> --fee <n>

Transactions:
  initialize --keystore <ks> --oracle <hex> --fee-rate <bps> --ltv <bps> --min-stake <secs> --oracle-fee <n>
  stake --keystore <ks> --amount <n>
  request-loan --keystore <ks> --amount <n> --score <0-100> --signature <hex>
  liquidate --keystore <ks> --borrower <addr> --index <n>

Queries:
  protocol
  account <addr>
  loans <addr>
  loan <addr> <index>
  balance <addr>
  history <addr> [--limit n]

The keystore passphrase is read from ` + passphrase.DefaultEnv + ` or prompted.`
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func apiClient(stderr io.Writer) (lendingAPI, bool) {
	api, err := newAPI(apiEndpoint, apiToken)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	return api, true
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func printJSON(stdout, stderr io.Writer, value interface{}) int {
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Failed to encode response: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

func reportAPIError(stderr io.Writer, err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(stderr, "Error: %s (%s)\n", apiErr.Message, apiErr.Code)
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func envOr(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}
