package index

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"gorm.io/gorm"

	"stakelend/core/events"
	"stakelend/core/types"
	"stakelend/crypto"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[0] = b
	return a
}

func TestStoreTracksLoanLifecycle(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewStore(db, nil)
	require.NoError(t, err)
	ctx := context.Background()
	borrower, liquidator := addr(1), addr(2)

	require.NoError(t, store.Record(ctx, events.LendingStaked{User: borrower, Amount: 1000, NewStake: 1000, TotalStaked: 1000}))
	require.NoError(t, store.Record(ctx, events.LendingLoanRequested{
		Borrower: borrower, Index: 0, Amount: 700, Collateral: 1000, CreditScore: 80, InterestRate: 500, LTVThreshold: 7000, StartTime: 1_700_000_000,
	}))
	require.NoError(t, store.Record(ctx, events.LendingLoanLiquidated{Borrower: borrower, Index: 0, Liquidator: liquidator, Seized: 500, CurrentLTV: 7350}))

	loans, err := store.LoansByBorrower(ctx, borrower.String())
	require.NoError(t, err)
	require.Len(t, loans, 1)
	require.Equal(t, StatusLiquidated, loans[0].Status)
	require.Equal(t, liquidator.String(), loans[0].LiquidatedBy)
	require.EqualValues(t, 500, loans[0].LiquidatedAmount)
	require.EqualValues(t, 1000, loans[0].Collateral)

	history, err := store.Activity(ctx, borrower.String(), 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, events.TypeLendingLoanLiquidated, history[0].Type)
	require.Equal(t, events.TypeLendingStaked, history[2].Type)

	liquidatorHistory, err := store.Activity(ctx, liquidator.String(), 0)
	require.NoError(t, err)
	require.Len(t, liquidatorHistory, 1)
	require.Equal(t, "liquidator", liquidatorHistory[0].Role)
	require.Equal(t, history[0].Receipt, liquidatorHistory[0].Receipt)
}

func TestTransferRecordsBothParties(t *testing.T) {
	store, err := NewStore(setupTestDB(t), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, events.Transfer{From: addr(3), To: addr(4), Amount: 25, Reason: events.TransferReasonOracleFee}))
	require.NoError(t, store.Record(ctx, events.Transfer{To: addr(4), Amount: 10, Reason: events.TransferReasonGenesis}))

	sender, err := store.Activity(ctx, addr(3).String(), 10)
	require.NoError(t, err)
	require.Len(t, sender, 1)
	require.Equal(t, "sender", sender[0].Role)

	recipient, err := store.Activity(ctx, addr(4).String(), 10)
	require.NoError(t, err)
	require.Len(t, recipient, 2)
	require.Contains(t, recipient[0].Attributes, `"reason":"genesis"`)
}

func TestStoreResumesSequence(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewStore(db, nil)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), events.LendingStaked{User: addr(5), Amount: 1}))

	reopened, err := NewStore(db, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, reopened.Sequence())
	require.NoError(t, reopened.Record(context.Background(), events.LendingStaked{User: addr(5), Amount: 1}))

	rows, err := reopened.Activity(context.Background(), addr(5).String(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotEqual(t, rows[0].Receipt, rows[1].Receipt)
}

func TestReceiptIDIsStable(t *testing.T) {
	ev := &types.Event{Type: "lending.staked", Attributes: map[string]string{"b": "2", "a": "1"}}
	same := &types.Event{Type: "lending.staked", Attributes: map[string]string{"a": "1", "b": "2"}}
	require.Equal(t, ReceiptID(7, ev), ReceiptID(7, same))
	require.NotEqual(t, ReceiptID(7, ev), ReceiptID(8, ev))
	require.Len(t, ReceiptID(1, ev), 64)
}

func readParquet[T any](t *testing.T, path string) []T {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(T), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	rows := make([]T, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestExportWritesParquetSnapshots(t *testing.T) {
	store, err := NewStore(setupTestDB(t), nil)
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.SetClock(func() time.Time { return now })

	borrower, liquidator := addr(1), addr(2)
	require.NoError(t, store.Record(ctx, events.LendingStaked{User: borrower, Amount: 1000, NewStake: 1000, TotalStaked: 1000}))
	now = base.Add(time.Hour)
	require.NoError(t, store.Record(ctx, events.LendingLoanRequested{
		Borrower: borrower, Index: 0, Amount: 700, Collateral: 1000, CreditScore: 80, InterestRate: 500, LTVThreshold: 7000, StartTime: base.Unix(),
	}))
	now = base.Add(2 * time.Hour)
	require.NoError(t, store.Record(ctx, events.LendingLoanLiquidated{Borrower: borrower, Index: 0, Liquidator: liquidator, Seized: 500, CurrentLTV: 7350}))

	dir := t.TempDir()
	result, err := store.Export(ctx, dir, base.Add(30*time.Minute), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, result.Loans)
	require.Equal(t, 3, result.Activities)
	require.Equal(t, filepath.Join(dir, "loans-20240301T150000Z.parquet"), result.LoansPath)

	loans := readParquet[loanRow](t, result.LoansPath)
	require.Len(t, loans, 1)
	require.Equal(t, borrower.String(), loans[0].Borrower)
	require.Equal(t, StatusLiquidated, loans[0].Status)
	require.Equal(t, "500", loans[0].LiquidatedAmount)
	require.EqualValues(t, 500, loans[0].InterestRate)

	activity := readParquet[activityRow](t, result.ActivityPath)
	require.Len(t, activity, 3)
	require.Equal(t, events.TypeLendingLoanRequested, activity[0].Type)
	require.Equal(t, "700", activity[0].Amount)

	_, err = store.Export(ctx, dir, base, base)
	require.Error(t, err)
	_, err = store.Export(ctx, "", time.Time{}, time.Time{})
	require.Error(t, err)
}
