package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/amort"
	"github.com/warp/lending-engine/calendar"
	"github.com/warp/lending-engine/overrides"
	"github.com/warp/lending-engine/store/sqlite"
	"github.com/warp/lending-engine/version"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testVersion(id string, number int) version.Version {
	return version.Version{
		ID:        id,
		Number:    number,
		Timestamp: time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
		Message:   "test commit",
		InputChanges: version.ChangeSet{
			{Path: "loanAmount", New: "1000"},
		},
	}
}

func TestLoanStore_AppendGetList(t *testing.T) {
	db := newTestDB(t)
	store := db.ForLoan("loan-1")
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testVersion("v-1", 1)))
	require.NoError(t, store.Append(ctx, testVersion("v-2", 2)))

	got, err := store.Get(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Number)
	assert.Equal(t, "test commit", got.Message)
	require.Len(t, got.InputChanges, 1)
	assert.Equal(t, "loanAmount", got.InputChanges[0].Path)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "v-1", all[0].ID)
	assert.Equal(t, "v-2", all[1].ID)
}

func TestLoanStore_GetUnknownID(t *testing.T) {
	db := newTestDB(t)
	store := db.ForLoan("loan-1")

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, version.ErrVersionNotFound)
}

func TestLoanStore_MarkDeletedKeepsTheRow(t *testing.T) {
	db := newTestDB(t)
	store := db.ForLoan("loan-1")
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testVersion("v-1", 1)))
	require.NoError(t, store.MarkDeleted(ctx, "v-1"))

	got, err := store.Get(ctx, "v-1")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, store.MarkDeleted(ctx, "missing"), version.ErrVersionNotFound)
}

func TestDB_LoansAreIsolated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ForLoan("loan-a").Append(ctx, testVersion("v-a", 1)))
	require.NoError(t, db.ForLoan("loan-b").Append(ctx, testVersion("v-b", 1)))

	_, err := db.ForLoan("loan-a").Get(ctx, "v-b")
	assert.ErrorIs(t, err, version.ErrVersionNotFound)

	loans, err := db.Loans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"loan-a", "loan-b"}, loans)
}

func TestManagerOverSQLite_CommitAndRollback(t *testing.T) {
	// End to end: a manager committing to SQLite and rolling back from a
	// persisted snapshot.

	db := newTestDB(t)
	ctx := context.Background()

	engine, err := amort.NewEngine(amort.Config{
		LoanAmount: decimal.RequireFromString("1000"),
		AnnualRate: decimal.RequireFromString("0.05"),
		Term:       12,
		StartDate:  calendar.NewDate(2024, time.January, 1),
		Calendar:   calendar.MustNew(calendar.Thirty360EU),
	})
	require.NoError(t, err)

	mgr := version.NewManager(engine, db.ForLoan("loan-1"))

	v1, err := mgr.CommitTransaction(ctx, "baseline")
	require.NoError(t, err)

	require.NoError(t, mgr.Engine().AddTermPaymentAmount(overrides.TermPaymentAmount{
		Term: 2, Amount: decimal.Zero, Active: true,
	}))
	_, err = mgr.CommitTransaction(ctx, "skip term 2")
	require.NoError(t, err)

	v3, err := mgr.Rollback(ctx, v1.ID, "undo")
	require.NoError(t, err)
	assert.True(t, v3.IsRollback)
	assert.Equal(t, v1.ID, v3.RolledBackFromVersionID)

	history, err := mgr.GetVersionHistory(ctx, false)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Equal(t, v1.Snapshot.Schedule, history[2].Snapshot.Schedule)
}
