package generic_test

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/accrual-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	testTenant generic.TenantID = "tenant-1"
	testPerson generic.PersonID = "person-1"

	typeWorked generic.AccrualTypeID = "worked"
	typeEarly  generic.AccrualTypeID = "early"
)

// workedModule counts every minute of the slice.
type workedModule struct{}

func (workedModule) AccrualType() generic.AccrualType {
	return generic.AccrualType{ID: typeWorked, Name: "Worked", Unit: generic.UnitMinutes, Enabled: true}
}

func (workedModule) ContributionFor(d generic.DayInterval) decimal.Decimal {
	return decimal.NewFromInt(int64(d.Duration() / time.Minute))
}

// earlyModule counts the minutes before 06:00 UTC.
type earlyModule struct{}

func (earlyModule) AccrualType() generic.AccrualType {
	return generic.AccrualType{ID: typeEarly, Name: "Early", Unit: generic.UnitMinutes, Enabled: true}
}

func (earlyModule) ContributionFor(d generic.DayInterval) decimal.Decimal {
	sixAM := d.Date.Midnight(time.UTC).Add(6 * time.Hour)
	end := d.End
	if end.After(sixAM) {
		end = sixAM
	}
	if !end.After(d.Start) {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(end.Sub(d.Start) / time.Minute))
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func date(s string) generic.Date { return generic.MustParseDate(s) }

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func agreement(id generic.AgreementID, start, end string) generic.Agreement {
	return generic.Agreement{
		ID:        id,
		TenantID:  testTenant,
		PersonID:  testPerson,
		StartDate: date(start),
		EndDate:   date(end),
	}
}

func timeRecord(id generic.TimeRecordID, start, end time.Time) generic.TimeRecord {
	return generic.TimeRecord{ID: id, TenantID: testTenant, PersonID: testPerson, Start: start, End: end}
}

// seededRows returns one empty row per day in [from, to] for the type, with
// the first row carrying 'carry' as its cumulative total.
func seededRows(typeID generic.AccrualTypeID, agreementID generic.AgreementID, from, to string, carry int64) []generic.AccrualRecord {
	var rows []generic.AccrualRecord
	for _, d := range (generic.Period{Start: date(from), End: date(to)}).Days() {
		rows = append(rows, generic.AccrualRecord{
			ID:              string(typeID) + "-" + d.String(),
			TenantID:        testTenant,
			PersonID:        testPerson,
			AgreementID:     agreementID,
			Date:            d,
			TypeID:          typeID,
			CumulativeTotal: decimal.Zero,
			Contributions:   map[generic.TimeRecordID]decimal.Decimal{},
		})
	}
	if len(rows) > 0 {
		rows[0].CumulativeTotal = dec(carry)
	}
	return rows
}

func rowOn(rows []generic.AccrualRecord, typeID generic.AccrualTypeID, d string) (generic.AccrualRecord, bool) {
	for _, r := range rows {
		if r.TypeID == typeID && r.Date == date(d) {
			return r, true
		}
	}
	return generic.AccrualRecord{}, false
}
