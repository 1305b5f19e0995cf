package timerange_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/timerange"
)

func TestCrossesDayBoundary(t *testing.T) {
	night := timerange.Range{From: timerange.NaiveTime{Hour: 23}, To: timerange.NaiveTime{Hour: 6}}
	assert.True(t, night.CrossesDayBoundary())

	day := timerange.Range{From: timerange.NaiveTime{Hour: 8}, To: timerange.NaiveTime{Hour: 17}}
	assert.False(t, day.CrossesDayBoundary())
}

func TestWithStartDateAsUnambiguousLocalsCrossingMidnight(t *testing.T) {
	loc := time.UTC
	night := timerange.Range{From: timerange.NaiveTime{Hour: 23}, To: timerange.NaiveTime{Hour: 6}}

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)

	concrete, ok := night.WithStartDateAsUnambiguousLocals(loc, date)
	require.True(t, ok)

	assert.Equal(t, 10, concrete.Start.Day())
	assert.Equal(t, 11, concrete.End.Day(), "the end of a midnight-crossing window lands on the next day")
}

func TestAfterDatetimeReturnsContainingWindowWhenInside(t *testing.T) {
	loc := time.UTC
	night := timerange.Range{From: timerange.NaiveTime{Hour: 23}, To: timerange.NaiveTime{Hour: 6}}

	ref := time.Date(2026, 3, 10, 2, 0, 0, 0, loc)

	concrete, ok := night.AfterDatetime(ref, true)
	require.True(t, ok)
	assert.True(t, concrete.Contains(ref))
}

func TestAfterDatetimeReturnsNextWindowWhenOutside(t *testing.T) {
	loc := time.UTC
	day := timerange.Range{From: timerange.NaiveTime{Hour: 9}, To: timerange.NaiveTime{Hour: 17}}

	ref := time.Date(2026, 3, 10, 20, 0, 0, 0, loc)

	concrete, ok := day.AfterDatetime(ref, true)
	require.True(t, ok)
	assert.True(t, concrete.Start.After(ref))
	assert.Equal(t, 11, concrete.Start.Day(), "after today's window has already passed, the next one is tomorrow")
}

func TestAfterDatetimeDisallowInsideSkipsCurrentWindow(t *testing.T) {
	loc := time.UTC
	day := timerange.Range{From: timerange.NaiveTime{Hour: 9}, To: timerange.NaiveTime{Hour: 17}}

	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)

	concrete, ok := day.AfterDatetime(ref, false)
	require.True(t, ok)
	assert.False(t, concrete.Contains(ref))
	assert.True(t, concrete.Start.After(ref))
}

func TestNaiveTimeBefore(t *testing.T) {
	assert.True(t, timerange.NaiveTime{Hour: 1}.Before(timerange.NaiveTime{Hour: 2}))
	assert.False(t, timerange.NaiveTime{Hour: 2}.Before(timerange.NaiveTime{Hour: 1}))
	assert.True(t, timerange.NaiveTime{Hour: 1, Minute: 30}.Before(timerange.NaiveTime{Hour: 1, Minute: 45}))
}

func TestParseNaiveTimeWithAndWithoutSeconds(t *testing.T) {
	nt, err := timerange.ParseNaiveTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, timerange.NaiveTime{Hour: 9, Minute: 30}, nt)

	nt, err = timerange.ParseNaiveTime("23:59:59")
	require.NoError(t, err)
	assert.Equal(t, timerange.NaiveTime{Hour: 23, Minute: 59, Second: 59}, nt)
}

func TestParseNaiveTimeRejectsOutOfRangeAndMalformed(t *testing.T) {
	_, err := timerange.ParseNaiveTime("24:00")
	assert.Error(t, err)

	_, err = timerange.ParseNaiveTime("not-a-time")
	assert.Error(t, err)
}
