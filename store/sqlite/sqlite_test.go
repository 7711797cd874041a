package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testAgreement(id generic.AgreementID, start, end string) generic.Agreement {
	return generic.Agreement{
		ID:        id,
		TenantID:  "tenant-1",
		PersonID:  "person-1",
		StartDate: generic.MustParseDate(start),
		EndDate:   generic.MustParseDate(end),
	}
}

func testRow(typeID generic.AccrualTypeID, d string, contributions map[generic.TimeRecordID]decimal.Decimal) generic.AccrualRecord {
	r := generic.AccrualRecord{
		ID:            string(typeID) + "-" + d,
		TenantID:      "tenant-1",
		PersonID:      "person-1",
		AgreementID:   "ag-1",
		Date:          generic.MustParseDate(d),
		TypeID:        typeID,
		Contributions: contributions,
	}
	r.RecomputeTotal()
	r.CumulativeTotal = r.Total
	return r
}

// =============================================================================
// AGREEMENTS
// =============================================================================

func TestApplicableAgreement(t *testing.T) {
	// GIVEN two agreements, the second overlapping the first's last day
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAgreement(ctx, testAgreement("ag-1", "2024-01-01", "2024-06-30")))
	require.NoError(t, s.SaveAgreement(ctx, testAgreement("ag-2", "2024-06-30", "2024-12-31")))

	tests := []struct {
		on   string
		want generic.AgreementID
	}{
		{"2024-03-01", "ag-1"},
		{"2024-06-30", "ag-2"},
		{"2024-12-31", "ag-2"},
	}
	for _, tt := range tests {
		got, err := s.ApplicableAgreement(ctx, "tenant-1", "person-1", generic.MustParseDate(tt.on))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.ID, tt.on)
	}

	// AND outside every agreement there is none
	_, err := s.ApplicableAgreement(ctx, "tenant-1", "person-1", generic.MustParseDate("2025-01-01"))
	assert.ErrorIs(t, err, generic.ErrAgreementNotFound)
	assert.True(t, sqlite.IsNotFound(err))
}

func TestSaveAgreement_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := testAgreement("ag-1", "2024-01-01", "2024-06-30")
	a.Terms = []byte(`{"weekly_hours":40}`)

	require.NoError(t, s.SaveAgreement(ctx, a))
	got, err := s.GetAgreement(ctx, "ag-1")

	require.NoError(t, err)
	assert.Equal(t, a.StartDate, got.StartDate)
	assert.Equal(t, a.EndDate, got.EndDate)
	assert.JSONEq(t, `{"weekly_hours":40}`, string(got.Terms))

	list, err := s.ListAgreements(ctx, "tenant-1", "person-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveAgreement_EndBeforeStart(t *testing.T) {
	s := newStore(t)

	err := s.SaveAgreement(context.Background(), testAgreement("ag-1", "2024-06-30", "2024-01-01"))

	assert.ErrorIs(t, err, generic.ErrInvalidRange)
}

// =============================================================================
// ACCRUALS
// =============================================================================

func TestAccruals_RoundTrip(t *testing.T) {
	// GIVEN rows with contributions
	s := newStore(t)
	ctx := context.Background()
	rows := []generic.AccrualRecord{
		testRow("night_hours", "2024-03-02", nil),
		testRow("annual_target_hours", "2024-03-02", map[generic.TimeRecordID]decimal.Decimal{
			"tr-1": decimal.NewFromInt(120),
			"tr-2": decimal.RequireFromString("30.5"),
		}),
		testRow("annual_target_hours", "2024-03-01", nil),
	}
	require.NoError(t, s.SaveAccruals(ctx, rows))

	// WHEN loading the window
	got, err := s.AccrualWindow(ctx, "tenant-1", "person-1",
		generic.MustParseDate("2024-03-01"), generic.MustParseDate("2024-03-02"))

	// THEN rows come back ordered by type then date with exact decimals
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, generic.AccrualTypeID("annual_target_hours"), got[0].TypeID)
	assert.Equal(t, generic.MustParseDate("2024-03-01"), got[0].Date)
	assert.True(t, got[1].Total.Equal(decimal.RequireFromString("150.5")))
	assert.True(t, got[1].Contributions["tr-2"].Equal(decimal.RequireFromString("30.5")))
	assert.Equal(t, generic.AccrualTypeID("night_hours"), got[2].TypeID)
	assert.NotNil(t, got[2].Contributions)
}

func TestSaveAccruals_UpsertsByDay(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	first := testRow("annual_target_hours", "2024-03-01", nil)
	require.NoError(t, s.SaveAccruals(ctx, []generic.AccrualRecord{first}))

	// Same (type, date), new contents
	second := testRow("annual_target_hours", "2024-03-01", map[generic.TimeRecordID]decimal.Decimal{"tr-1": decimal.NewFromInt(60)})
	require.NoError(t, s.SaveAccruals(ctx, []generic.AccrualRecord{second}))

	got, err := s.AccrualWindow(ctx, "tenant-1", "person-1",
		generic.MustParseDate("2024-03-01"), generic.MustParseDate("2024-03-01"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CumulativeTotal.Equal(decimal.NewFromInt(60)))
}

func TestSeedAccruals_KeepsExistingRows(t *testing.T) {
	// GIVEN a row already carrying a balance
	s := newStore(t)
	ctx := context.Background()
	existing := testRow("annual_target_hours", "2024-06-30", map[generic.TimeRecordID]decimal.Decimal{"tr-1": decimal.NewFromInt(480)})
	require.NoError(t, s.SaveAccruals(ctx, []generic.AccrualRecord{existing}))

	// WHEN seeding an empty row for the same day plus a new day
	n, err := s.SeedAccruals(ctx, []generic.AccrualRecord{
		testRow("annual_target_hours", "2024-06-30", nil),
		testRow("annual_target_hours", "2024-07-01", nil),
	})

	// THEN only the new day is inserted
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.AccrualWindow(ctx, "tenant-1", "person-1",
		generic.MustParseDate("2024-06-30"), generic.MustParseDate("2024-06-30"))
	require.NoError(t, err)
	assert.True(t, got[0].CumulativeTotal.Equal(decimal.NewFromInt(480)))
}

func TestReset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAgreement(ctx, testAgreement("ag-1", "2024-01-01", "2024-06-30")))
	require.NoError(t, s.SaveAccruals(ctx, []generic.AccrualRecord{testRow("annual_target_hours", "2024-03-01", nil)}))

	require.NoError(t, s.Reset(ctx))

	list, err := s.ListAgreements(ctx, "tenant-1", "person-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveAccruals_RollsBackOnFailure(t *testing.T) {
	// GIVEN the second insert of a batch fails
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accruals").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO accruals").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	s := sqlite.NewFromDB(db)

	// WHEN saving the batch
	err = s.SaveAccruals(context.Background(), []generic.AccrualRecord{
		testRow("annual_target_hours", "2024-03-01", nil),
		testRow("annual_target_hours", "2024-03-02", nil),
	})

	// THEN the error surfaces and the transaction is rolled back
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-03-02")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAccruals_CommitsBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accruals").
		WithArgs("annual_target_hours-2024-03-01", "tenant-1", "person-1", "ag-1", "2024-03-01", "annual_target_hours",
			"0", "0", "{}", "0", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = sqlite.NewFromDB(db).SaveAccruals(context.Background(), []generic.AccrualRecord{
		testRow("annual_target_hours", "2024-03-01", nil),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
