package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"stakelend/crypto"
)

func parseAddressArg(args []string, want int, usage string, stderr io.Writer) (crypto.Address, bool) {
	if len(args) != want {
		fmt.Fprintf(stderr, "Usage: lend-cli %s\n", usage)
		return crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(args[0]))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid address: %v\n", err)
		return crypto.Address{}, false
	}
	return addr, true
}

func runProtocol(args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: lend-cli protocol")
		return 1
	}
	api, ok := apiClient(stderr)
	if !ok {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	view, err := api.Protocol(ctx)
	if err != nil {
		return reportAPIError(stderr, err)
	}
	return printJSON(stdout, stderr, view)
}

func runAccount(args []string, stdout, stderr io.Writer) int {
	addr, ok := parseAddressArg(args, 1, "account <address>", stderr)
	if !ok {
		return 1
	}
	api, ok := apiClient(stderr)
	if !ok {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	view, err := api.Account(ctx, addr)
	if err != nil {
		return reportAPIError(stderr, err)
	}
	return printJSON(stdout, stderr, view)
}

func runLoans(args []string, stdout, stderr io.Writer) int {
	addr, ok := parseAddressArg(args, 1, "loans <address>", stderr)
	if !ok {
		return 1
	}
	api, ok := apiClient(stderr)
	if !ok {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	loans, err := api.Loans(ctx, addr)
	if err != nil {
		return reportAPIError(stderr, err)
	}
	if len(loans) == 0 {
		fmt.Fprintf(stdout, "No loans for %s\n", addr)
		return 0
	}
	for _, loan := range loans {
		flag := ""
		if loan.Liquidatable {
			flag = " LIQUIDATABLE"
		}
		fmt.Fprintf(stdout, "#%d %-10s amount=%d value=%d ltv=%d.%02d%%%s\n",
			loan.Index, loan.Status, loan.Amount, loan.LoanValue, loan.CurrentLTV/100, loan.CurrentLTV%100, flag)
	}
	return 0
}

func runLoan(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: lend-cli loan <address> <index>")
		return 1
	}
	addr, ok := parseAddressArg(args[:1], 1, "loan <address> <index>", stderr)
	if !ok {
		return 1
	}
	index, err := strconv.ParseUint(strings.TrimSpace(args[1]), 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid index %q\n", args[1])
		return 1
	}
	api, ok := apiClient(stderr)
	if !ok {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	view, err := api.Loan(ctx, addr, index)
	if err != nil {
		return reportAPIError(stderr, err)
	}
	return printJSON(stdout, stderr, view)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	addr, ok := parseAddressArg(args, 1, "balance <address>", stderr)
	if !ok {
		return 1
	}
	api, ok := apiClient(stderr)
	if !ok {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	view, err := api.Balance(ctx, addr)
	if err != nil {
		return reportAPIError(stderr, err)
	}
	fmt.Fprintf(stdout, "Address: %s\n", view.Address)
	fmt.Fprintf(stdout, "Balance: %d\n", view.Balance)
	fmt.Fprintf(stdout, "Nonce:   %d\n", view.Nonce)
	return 0
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("history", stderr)
	limit := fs.Int("limit", 20, "maximum entries to show")
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: lend-cli history <address> [--limit n]")
		return 1
	}
	addr, ok := parseAddressArg(args[:1], 1, "history <address> [--limit n]", stderr)
	if !ok {
		return 1
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(stderr, "Error: --limit must be positive")
		return 1
	}
	api, ok := apiClient(stderr)
	if !ok {
		return 1
	}
	ctx, cancel := requestContext()
	defer cancel()
	rows, err := api.History(ctx, addr, *limit)
	if err != nil {
		return reportAPIError(stderr, err)
	}
	for _, row := range rows {
		fmt.Fprintf(stdout, "%s  %-22s %-10s %d\n", row.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), row.Type, row.Role, row.Amount)
	}
	return 0
}
