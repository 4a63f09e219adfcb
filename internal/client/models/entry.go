// Package models defines the logbook entry payload and the records the sync
// engine moves between the local store and the backend.
package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/google/uuid"
)

// FlightTime is the per-category breakdown of logged hours.
type FlightTime struct {
	Total               *float64 `json:"total"`
	PIC                 *float64 `json:"pic"`
	SIC                 *float64 `json:"sic"`
	Dual                *float64 `json:"dual"`
	Solo                *float64 `json:"solo"`
	Night               *float64 `json:"night"`
	ActualInstrument    *float64 `json:"actual_instrument"`
	DualGiven           *float64 `json:"dual_given"`
	CrossCountry        *float64 `json:"cross_country"`
	SimulatedInstrument *float64 `json:"simulated_instrument"`
}

// Performance holds takeoff, landing and approach counters.
type Performance struct {
	DayTakeoffs       *int    `json:"day_takeoffs"`
	NightTakeoffs     *int    `json:"night_takeoffs"`
	DayLandings       *int    `json:"day_landings"`
	NightLandings     *int    `json:"night_landings"`
	ApproachCount     *int    `json:"approach_count"`
	ApproachType      *string `json:"approach_type"`
	HoldingProcedures *int    `json:"holding_procedures"`
}

// OOOI are gate/runway times (out, off, on, in).
type OOOI struct {
	Out    *string `json:"out"`
	Off    *string `json:"off"`
	On     *string `json:"on"`
	In     *string `json:"in"`
	IsZulu bool    `json:"is_zulu"`
}

// Entry is the business payload of a logbook record. It carries no
// server-owned fields, so it is also the shape sent on update and restore.
type Entry struct {
	Date                  string         `json:"date"`
	Role                  string         `json:"role"`
	AircraftCategoryClass string         `json:"aircraft_category_class"`
	CategoryClassTime     *float64       `json:"category_class_time"`
	AircraftMakeModel     string         `json:"aircraft_make_model"`
	Registration          string         `json:"registration"`
	FlightNumber          *string        `json:"flight_number"`
	Departure             string         `json:"departure"`
	Destination           string         `json:"destination"`
	Route                 *string        `json:"route"`
	TrainingElements      *string        `json:"training_elements"`
	TrainingInstructor    *string        `json:"training_instructor"`
	InstructorCertificate *string        `json:"instructor_certificate"`
	FlightConditions      []string       `json:"flight_conditions"`
	Remarks               *string        `json:"remarks"`
	FlightTime            FlightTime     `json:"flight_time"`
	Performance           Performance    `json:"performance"`
	OOOI                  *OOOI          `json:"oooi"`
	Flagged               bool           `json:"flagged"`
	IsImported            bool           `json:"is_imported"`
	ImportSource          *string        `json:"import_source"`
	ImportMetadata        map[string]any `json:"import_metadata"`
}

// BusinessKey is the set of fields used to find a record on the backend when
// its canonical identifier is unknown.
type BusinessKey struct {
	Date         string `json:"date"`
	Registration string `json:"registration"`
	Departure    string `json:"departure"`
	Destination  string `json:"destination"`
}

func (k BusinessKey) String() string {
	return fmt.Sprintf("%s %s %s-%s", k.Date, k.Registration, k.Departure, k.Destination)
}

// Key returns the business key of e.
func (e Entry) Key() BusinessKey {
	return BusinessKey{
		Date:         e.Date,
		Registration: e.Registration,
		Departure:    e.Departure,
		Destination:  e.Destination,
	}
}

// Validate checks the fields the backend requires.
func (e Entry) Validate() error {
	if _, err := time.Parse(common.DateLayout, e.Date); err != nil {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", common.ErrInvalidEntry, e.Date)
	}
	var missing []string
	if strings.TrimSpace(e.Registration) == "" {
		missing = append(missing, "registration")
	}
	if strings.TrimSpace(e.Departure) == "" {
		missing = append(missing, "departure")
	}
	if strings.TrimSpace(e.Destination) == "" {
		missing = append(missing, "destination")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", common.ErrInvalidEntry, strings.Join(missing, ", "))
	}
	return nil
}

// Fields returns e as a generic JSON object, the form stored in audit
// snapshots.
func (e Entry) Fields() map[string]any {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// ChangedFields lists the JSON field names whose values differ between a and b.
func ChangedFields(a, b Entry) []string {
	am, bm := a.Fields(), b.Fields()
	var out []string
	for k, av := range am {
		if !reflect.DeepEqual(av, bm[k]) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// NewID mints a canonical identifier.
func NewID() string {
	return uuid.NewString()
}

// IsCanonicalID reports whether id is in the backend's identifier format,
// the 36 character hyphenated UUID.
func IsCanonicalID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
