package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		start   string
		end     string
		wantErr bool
	}{
		{name: "standard", input: "10/05/2025 - 14/05/2025", start: "2025-05-10", end: "2025-05-14"},
		{name: "no spaces", input: "10/05/2025-14/05/2025", start: "2025-05-10", end: "2025-05-14"},
		{name: "single day", input: "01/01/2026 - 01/01/2026", start: "2026-01-01", end: "2026-01-01"},
		{name: "surrounding whitespace", input: "  10/05/2025 - 11/05/2025 ", start: "2025-05-10", end: "2025-05-11"},
		{name: "reversed", input: "14/05/2025 - 10/05/2025", wantErr: true},
		{name: "month out of range", input: "10/13/2025 - 14/13/2025", wantErr: true},
		{name: "iso dates", input: "2025-05-10 - 2025-05-14", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParseDateRange(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start.Format("2006-01-02"))
			assert.Equal(t, tt.end, end.Format("2006-01-02"))
		})
	}
}

func TestFormatDateRangeRoundTrip(t *testing.T) {
	start, end, err := ParseDateRange("10/05/2025 - 14/05/2025")
	require.NoError(t, err)
	assert.Equal(t, "10/05/2025 - 14/05/2025", FormatDateRange(start, end))
}

func TestRequestValidate(t *testing.T) {
	valid := Request{Destination: "Lisbon, Portugal", Dates: "10/05/2025 - 14/05/2025", TravelGroup: "couple"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantMsg string
	}{
		{name: "missing destination", mutate: func(r *Request) { r.Destination = "  " }, wantMsg: "destination is required"},
		{name: "missing dates", mutate: func(r *Request) { r.Dates = "" }, wantMsg: "dates are required"},
		{name: "bad dates", mutate: func(r *Request) { r.Dates = "next week" }, wantMsg: "DD/MM/YYYY"},
		{name: "unknown group", mutate: func(r *Request) { r.TravelGroup = "coworkers" }, wantMsg: "travel group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRequestValidateReportsEveryProblem(t *testing.T) {
	err := Request{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination is required")
	assert.Contains(t, err.Error(), "dates are required")
}

func TestTravelGroupCaseInsensitive(t *testing.T) {
	assert.True(t, ValidTravelGroup("Family"))
	assert.True(t, ValidTravelGroup("SOLO"))
	assert.False(t, ValidTravelGroup(""))
}

func TestNew(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	p, err := New("p1", "owner-1", Request{
		Destination: " Lisbon, Portugal ",
		Dates:       "10/05/2025 - 14/05/2025",
		TravelGroup: "Couple",
		Flight:      &Booking{Booked: true, Details: "TP1234"},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "Lisbon, Portugal", p.Destination)
	assert.Equal(t, GroupCouple, p.TravelGroup)
	assert.Equal(t, StatusPendingGeneration, p.Status)
	assert.Equal(t, 5, p.Days())
	assert.Equal(t, "10/05/2025 - 14/05/2025", p.Dates())
	assert.Equal(t, now, p.CreatedAt)
	require.NotNil(t, p.Flight)
	assert.Equal(t, "TP1234", p.Flight.Details)
}

func TestNewRejectsInvalidRequest(t *testing.T) {
	_, err := New("p1", "owner-1", Request{Destination: "Lisbon"}, time.Now())
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		valid    bool
		terminal bool
	}{
		{StatusPendingGeneration, true, false},
		{StatusGenerating, true, false},
		{StatusGenerated, true, true},
		{StatusError, true, true},
		{Status("done"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}
