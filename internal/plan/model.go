// Package plan provides the trip plan domain model and data access.
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is where a plan is in the generation lifecycle.
type Status string

const (
	StatusPendingGeneration Status = "pending_generation"
	StatusGenerating        Status = "generating"
	StatusGenerated         Status = "generated"
	StatusError             Status = "error"
)

// Valid returns true if s is a known plan status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingGeneration, StatusGenerating, StatusGenerated, StatusError:
		return true
	}
	return false
}

// Terminal returns true for statuses a poller can stop on.
func (s Status) Terminal() bool {
	return s == StatusGenerated || s == StatusError
}

// TravelGroup is who the trip is for.
type TravelGroup string

const (
	GroupSolo    TravelGroup = "solo"
	GroupCouple  TravelGroup = "couple"
	GroupFamily  TravelGroup = "family"
	GroupFriends TravelGroup = "friends"
)

// ValidTravelGroup returns true if s is a known travel group, ignoring case.
func ValidTravelGroup(s string) bool {
	switch TravelGroup(strings.ToLower(s)) {
	case GroupSolo, GroupCouple, GroupFamily, GroupFriends:
		return true
	}
	return false
}

// Booking describes an already-booked flight or accommodation.
type Booking struct {
	Booked  bool   `json:"booked"`
	Details string `json:"details,omitempty"`
}

// DateLayout is the day/month/year format used in date ranges.
const DateLayout = "02/01/2006"

var dateRangeRE = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})\s*-\s*(\d{2}/\d{2}/\d{4})$`)

// ParseDateRange parses "DD/MM/YYYY - DD/MM/YYYY" into start and end dates.
func ParseDateRange(s string) (time.Time, time.Time, error) {
	m := dateRangeRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("dates must look like DD/MM/YYYY - DD/MM/YYYY, got %q", s)
	}
	start, err := time.Parse(DateLayout, m[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing start date: %w", err)
	}
	end, err := time.Parse(DateLayout, m[2])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing end date: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", m[2], m[1])
	}
	return start, end, nil
}

// FormatDateRange is the inverse of ParseDateRange.
func FormatDateRange(start, end time.Time) string {
	return start.Format(DateLayout) + " - " + end.Format(DateLayout)
}

// Request is what a traveler submits to create a plan.
type Request struct {
	Destination    string   `json:"destination"`
	Dates          string   `json:"dates"`
	TravelGroup    string   `json:"travel_group,omitempty"`
	Interests      string   `json:"interests,omitempty"`
	Budget         string   `json:"budget,omitempty"`
	Transportation string   `json:"transportation,omitempty"`
	Flight         *Booking `json:"flight,omitempty"`
	Accommodation  *Booking `json:"accommodation,omitempty"`
}

// Validate checks required fields. All problems are reported together.
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Destination) == "" {
		errs = append(errs, errors.New("destination is required"))
	}
	if strings.TrimSpace(r.Dates) == "" {
		errs = append(errs, errors.New("dates are required"))
	} else if _, _, err := ParseDateRange(r.Dates); err != nil {
		errs = append(errs, err)
	}
	if r.TravelGroup != "" && !ValidTravelGroup(r.TravelGroup) {
		errs = append(errs, fmt.Errorf("travel group must be one of solo, couple, family, friends, got %q", r.TravelGroup))
	}
	return errors.Join(errs...)
}

// Plan is a travel request plus its generation status.
type Plan struct {
	ID                       string      `json:"id"`
	OwnerID                  string      `json:"owner_id"`
	Destination              string      `json:"destination"`
	StartDate                time.Time   `json:"start_date"`
	EndDate                  time.Time   `json:"end_date"`
	TravelGroup              TravelGroup `json:"travel_group,omitempty"`
	Interests                string      `json:"interests,omitempty"`
	Budget                   string      `json:"budget,omitempty"`
	Transportation           string      `json:"transportation,omitempty"`
	Flight                   *Booking    `json:"flight,omitempty"`
	Accommodation            *Booking    `json:"accommodation,omitempty"`
	RegenerationInstructions string      `json:"regeneration_instructions,omitempty"`
	Status                   Status      `json:"status"`
	ErrorMessage             string      `json:"error_message,omitempty"`
	CreatedAt                time.Time   `json:"created_at"`
	UpdatedAt                time.Time   `json:"updated_at"`
}

// New builds a pending plan from a validated request.
func New(id, ownerID string, req Request, now time.Time) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start, end, err := ParseDateRange(req.Dates)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ID:             id,
		OwnerID:        ownerID,
		Destination:    strings.TrimSpace(req.Destination),
		StartDate:      start,
		EndDate:        end,
		TravelGroup:    TravelGroup(strings.ToLower(req.TravelGroup)),
		Interests:      req.Interests,
		Budget:         req.Budget,
		Transportation: req.Transportation,
		Flight:         req.Flight,
		Accommodation:  req.Accommodation,
		Status:         StatusPendingGeneration,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Dates returns the plan's date range in request form.
func (p *Plan) Dates() string {
	return FormatDateRange(p.StartDate, p.EndDate)
}

// Days returns the number of calendar days the trip covers.
func (p *Plan) Days() int {
	return int(p.EndDate.Sub(p.StartDate).Hours()/24) + 1
}
