package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/generic/store"
	"github.com/warp/accrual-engine/worktime"
)

func newCalculator(s *store.Memory, modules ...generic.AccrualModule) *generic.Calculator {
	logger, _ := test.NewNullLogger()
	return &generic.Calculator{
		Agreements: s,
		Accruals:   s,
		Modules:    modules,
		Location:   time.UTC,
		Logger:     logger,
	}
}

func seedStore(t *testing.T, s *store.Memory, rows ...[]generic.AccrualRecord) {
	t.Helper()
	for _, batch := range rows {
		require.NoError(t, s.SaveAccruals(context.Background(), batch))
	}
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestCalculate_CreateAcrossModules(t *testing.T) {
	// GIVEN an agreement and rows for two accrual types
	s := store.NewMemory()
	ag := agreement("ag-1", "2023-04-01", "2023-04-30")
	s.AddAgreement(ag)
	seedStore(t, s,
		seededRows(typeWorked, ag.ID, "2023-04-01", "2023-04-30", 0),
		seededRows(typeEarly, ag.ID, "2023-04-01", "2023-04-30", 0),
	)
	calc := newCalculator(s, workedModule{}, earlyModule{})

	// WHEN a shift from 22:00 to 07:00 is created
	r := timeRecord("tr-1", utc(2023, 4, 10, 22, 0), utc(2023, 4, 11, 7, 0))
	changed, err := calc.Calculate(context.Background(), r, generic.ActionCreate)

	// THEN both types are recomputed from the start date to the agreement end
	require.NoError(t, err)
	assert.Len(t, changed, 2*21)

	worked, ok := rowOn(changed, typeWorked, "2023-04-11")
	require.True(t, ok)
	assert.True(t, worked.Total.Equal(dec(420)))
	assert.True(t, worked.CumulativeTotal.Equal(dec(540)))

	early, ok := rowOn(changed, typeEarly, "2023-04-30")
	require.True(t, ok)
	assert.True(t, early.CumulativeTotal.Equal(dec(360)))

	// AND the seed day is not part of the result
	_, ok = rowOn(changed, typeWorked, "2023-04-09")
	assert.False(t, ok)

	// AND nothing was persisted by the calculator itself
	assert.Equal(t, 2, s.SaveCount())
}

func TestCalculate_AgreementResolvedByEndDate(t *testing.T) {
	// GIVEN two consecutive agreements
	s := store.NewMemory()
	first := agreement("ag-1", "2023-06-01", "2023-06-30")
	second := agreement("ag-2", "2023-07-01", "2023-07-31")
	s.AddAgreement(first)
	s.AddAgreement(second)
	seedStore(t, s,
		seededRows(typeWorked, first.ID, "2023-06-01", "2023-06-30", 0),
		seededRows(typeWorked, second.ID, "2023-07-01", "2023-07-31", 0),
	)
	calc := newCalculator(s, workedModule{})

	// WHEN a record crosses into the second agreement
	r := timeRecord("tr-1", utc(2023, 6, 30, 20, 0), utc(2023, 7, 1, 4, 0))
	changed, err := calc.Calculate(context.Background(), r, generic.ActionCreate)

	// THEN the window runs to the second agreement's end
	require.NoError(t, err)
	require.NotEmpty(t, changed)
	assert.Equal(t, date("2023-07-31"), changed[len(changed)-1].Date)

	// AND the second agreement starts from zero
	july, _ := rowOn(changed, typeWorked, "2023-07-01")
	assert.True(t, july.CumulativeTotal.Equal(dec(240)))
	june, _ := rowOn(changed, typeWorked, "2023-06-30")
	assert.True(t, june.CumulativeTotal.Equal(dec(240)))
}

func TestCalculate_DeleteRestoresBalances(t *testing.T) {
	s := store.NewMemory()
	ag := agreement("ag-1", "2023-04-01", "2023-04-30")
	s.AddAgreement(ag)
	seedStore(t, s, seededRows(typeWorked, ag.ID, "2023-04-01", "2023-04-30", 0))
	calc := newCalculator(s, workedModule{})
	r := timeRecord("tr-1", utc(2023, 4, 10, 9, 0), utc(2023, 4, 10, 17, 0))

	created, err := calc.Calculate(context.Background(), r, generic.ActionCreate)
	require.NoError(t, err)
	require.NoError(t, s.SaveAccruals(context.Background(), created))

	deleted, err := calc.Calculate(context.Background(), r, generic.ActionDelete)
	require.NoError(t, err)

	for _, row := range deleted {
		assert.True(t, row.CumulativeTotal.IsZero(), "day %s", row.Date)
		assert.NotContains(t, row.Contributions, generic.TimeRecordID("tr-1"))
	}
}

// =============================================================================
// NON-FATAL CONDITIONS
// =============================================================================

func TestCalculate_NoAgreement(t *testing.T) {
	// GIVEN rows but no agreement
	s := store.NewMemory()
	seedStore(t, s, seededRows(typeWorked, "ag-1", "2023-04-01", "2023-04-30", 0))
	logger, hook := test.NewNullLogger()
	calc := newCalculator(s, workedModule{})
	calc.Logger = logger

	// WHEN calculating
	changed, err := calc.Calculate(context.Background(),
		timeRecord("tr-1", utc(2023, 4, 10, 9, 0), utc(2023, 4, 10, 17, 0)), generic.ActionCreate)

	// THEN nothing changes and a warning is logged
	assert.NoError(t, err)
	assert.Nil(t, changed)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestCalculate_NoAccruals(t *testing.T) {
	s := store.NewMemory()
	s.AddAgreement(agreement("ag-1", "2023-04-01", "2023-04-30"))
	logger, hook := test.NewNullLogger()
	calc := newCalculator(s, workedModule{})
	calc.Logger = logger

	changed, err := calc.Calculate(context.Background(),
		timeRecord("tr-1", utc(2023, 4, 10, 9, 0), utc(2023, 4, 10, 17, 0)), generic.ActionCreate)

	assert.NoError(t, err)
	assert.Nil(t, changed)
	require.NotNil(t, hook.LastEntry())
	assert.ErrorIs(t, hook.LastEntry().Data[logrus.ErrorKey].(error), generic.ErrNoAccrualsFound)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestCalculate_Failures(t *testing.T) {
	ag := agreement("ag-1", "2023-04-01", "2023-04-30")
	valid := timeRecord("tr-1", utc(2023, 4, 10, 9, 0), utc(2023, 4, 10, 17, 0))

	tests := []struct {
		name    string
		modules []generic.AccrualModule
		record  generic.TimeRecord
		action  generic.Action
		want    error
	}{
		{
			name:    "update is rejected",
			modules: []generic.AccrualModule{workedModule{}},
			record:  valid,
			action:  generic.ActionUpdate,
			want:    generic.ErrUnsupportedAction,
		},
		{
			name:   "no modules",
			record: valid,
			action: generic.ActionCreate,
			want:   generic.ErrNoAccrualModules,
		},
		{
			name:    "end before start",
			modules: []generic.AccrualModule{workedModule{}},
			record:  timeRecord("tr-1", utc(2023, 4, 10, 17, 0), utc(2023, 4, 10, 9, 0)),
			action:  generic.ActionCreate,
			want:    generic.ErrInvalidRange,
		},
		{
			name:    "type without rows",
			modules: []generic.AccrualModule{workedModule{}, earlyModule{}},
			record:  valid,
			action:  generic.ActionCreate,
			want:    generic.ErrMissingAccrual,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN rows for the worked type only
			s := store.NewMemory()
			s.AddAgreement(ag)
			seedStore(t, s, seededRows(typeWorked, ag.ID, "2023-04-01", "2023-04-30", 0))

			// WHEN calculating
			changed, err := newCalculator(s, tt.modules...).Calculate(context.Background(), tt.record, tt.action)

			// THEN no rows come back with the expected error
			assert.Nil(t, changed)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCalculate_MissingDayInsideWindow(t *testing.T) {
	// GIVEN a gap on 2023-04-11
	s := store.NewMemory()
	ag := agreement("ag-1", "2023-04-01", "2023-04-30")
	s.AddAgreement(ag)
	seedStore(t, s,
		seededRows(typeWorked, ag.ID, "2023-04-01", "2023-04-10", 0),
		seededRows(typeWorked, ag.ID, "2023-04-12", "2023-04-30", 0),
	)

	// WHEN a record touches the gap
	_, err := newCalculator(s, workedModule{}).Calculate(context.Background(),
		timeRecord("tr-1", utc(2023, 4, 10, 22, 0), utc(2023, 4, 11, 2, 0)), generic.ActionCreate)

	// THEN the missing day is reported
	var missing *generic.MissingAccrualError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, date("2023-04-11"), missing.Date)
	assert.True(t, generic.IsDataError(err))
}

// =============================================================================
// BUILT-IN MODULES
// =============================================================================

func TestCalculate_SpringForwardWithBuiltInModules(t *testing.T) {
	// GIVEN London days and both built-in modules
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	s := store.NewMemory()
	ag := agreement("ag-1", "2023-03-01", "2023-03-31")
	s.AddAgreement(ag)
	seedStore(t, s,
		seededRows(worktime.TypeAnnualTargetHours, ag.ID, "2023-03-01", "2023-03-31", 0),
		seededRows(worktime.TypeNightHours, ag.ID, "2023-03-01", "2023-03-31", 0),
	)
	calc := newCalculator(s, worktime.AnnualTargetHours{}, worktime.NewNightHours(london))
	calc.Location = london

	// WHEN 00:59 GMT to 03:59 BST on the spring-forward day is created
	start := time.Date(2023, time.March, 26, 0, 59, 0, 0, time.FixedZone("", 0))
	end := time.Date(2023, time.March, 26, 3, 59, 0, 0, time.FixedZone("", 3600))
	changed, err := calc.Calculate(context.Background(), timeRecord("tr-dst", start, end), generic.ActionCreate)

	// THEN the two real hours land on 2023-03-26 for both types
	require.NoError(t, err)
	for _, typeID := range []generic.AccrualTypeID{worktime.TypeAnnualTargetHours, worktime.TypeNightHours} {
		day, ok := rowOn(changed, typeID, "2023-03-26")
		require.True(t, ok, typeID)
		assert.True(t, day.Total.Equal(dec(120)), "%s total %s", typeID, day.Total)
		assert.True(t, day.CumulativeTotal.Equal(dec(120)), typeID)
		_, ok = rowOn(changed, typeID, "2023-03-25")
		assert.False(t, ok, typeID)
	}
}

func TestCalculate_NightHoursWithBuiltInModule(t *testing.T) {
	// GIVEN UTC days and the night-hours module
	s := store.NewMemory()
	ag := agreement("ag-1", "2023-03-01", "2023-03-31")
	s.AddAgreement(ag)
	seedStore(t, s, seededRows(worktime.TypeNightHours, ag.ID, "2023-02-28", "2023-03-31", 0))
	calc := newCalculator(s, worktime.NewNightHours(time.UTC))

	// WHEN 00:00-06:00 is created
	changed, err := calc.Calculate(context.Background(),
		timeRecord("tr-1", utc(2023, 3, 18, 0, 0), utc(2023, 3, 18, 6, 0)), generic.ActionCreate)
	require.NoError(t, err)
	require.NoError(t, s.SaveAccruals(context.Background(), changed))

	// THEN 2023-03-18 gets 360 minutes
	day, ok := rowOn(changed, worktime.TypeNightHours, "2023-03-18")
	require.True(t, ok)
	assert.True(t, day.Total.Equal(dec(360)))

	// WHEN 04:00-10:00 on the same day is added
	changed, err = calc.Calculate(context.Background(),
		timeRecord("tr-2", utc(2023, 3, 18, 4, 0), utc(2023, 3, 18, 10, 0)), generic.ActionCreate)
	require.NoError(t, err)

	// THEN it contributes 120 minutes on top
	day, ok = rowOn(changed, worktime.TypeNightHours, "2023-03-18")
	require.True(t, ok)
	assert.True(t, day.Contributions["tr-2"].Equal(dec(120)))
	assert.True(t, day.CumulativeTotal.Equal(dec(480)))
}
