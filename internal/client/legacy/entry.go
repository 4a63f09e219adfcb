package legacy

import (
	"strings"

	"github.com/dmitrijs2005/logsync/internal/client/models"
)

// Entry is a logbook entry in the legacy browser export format.
type Entry struct {
	ID                    string      `json:"id"`
	Date                  string      `json:"date"`
	Role                  string      `json:"role"`
	AircraftCategoryClass string      `json:"aircraftCategoryClass"`
	CategoryClassTime     *float64    `json:"categoryClassTime"`
	AircraftMakeModel     string      `json:"aircraftMakeModel"`
	Registration          string      `json:"registration"`
	FlightNumber          *string     `json:"flightNumber"`
	Departure             string      `json:"departure"`
	Destination           string      `json:"destination"`
	Route                 string      `json:"route"`
	TrainingElements      string      `json:"trainingElements"`
	TrainingInstructor    string      `json:"trainingInstructor"`
	InstructorCertificate string      `json:"instructorCertificate"`
	FlightConditions      []string    `json:"flightConditions"`
	Remarks               string      `json:"remarks"`
	FlightTime            FlightTime  `json:"flightTime"`
	Performance           Performance `json:"performance"`
	OOOI                  *OOOI       `json:"oooi,omitempty"`
	Flagged               bool        `json:"flagged,omitempty"`
}

type FlightTime struct {
	Total               *float64 `json:"total"`
	PIC                 *float64 `json:"pic"`
	SIC                 *float64 `json:"sic"`
	Dual                *float64 `json:"dual"`
	Solo                *float64 `json:"solo"`
	Night               *float64 `json:"night"`
	ActualInstrument    *float64 `json:"actualInstrument"`
	DualGiven           *float64 `json:"dualGiven"`
	CrossCountry        *float64 `json:"crossCountry"`
	SimulatedInstrument *float64 `json:"simulatedInstrument"`
}

type Performance struct {
	DayTakeoffs       *int    `json:"dayTakeoffs"`
	NightTakeoffs     *int    `json:"nightTakeoffs"`
	DayLandings       *int    `json:"dayLandings"`
	NightLandings     *int    `json:"nightLandings"`
	ApproachCount     *int    `json:"approachCount"`
	ApproachType      *string `json:"approachType"`
	HoldingProcedures *int    `json:"holdingProcedures"`
}

type OOOI struct {
	Out    *string `json:"out"`
	Off    *string `json:"off"`
	On     *string `json:"on"`
	In     *string `json:"in"`
	IsZulu bool    `json:"isZulu"`
}

// convert maps a legacy entry onto the current payload. Empty optional text
// fields become null.
func (l Entry) convert(importedAt string) models.Entry {
	e := models.Entry{
		Date:                  l.Date,
		Role:                  l.Role,
		AircraftCategoryClass: l.AircraftCategoryClass,
		CategoryClassTime:     l.CategoryClassTime,
		AircraftMakeModel:     l.AircraftMakeModel,
		Registration:          l.Registration,
		FlightNumber:          nonEmpty(deref(l.FlightNumber)),
		Departure:             l.Departure,
		Destination:           l.Destination,
		Route:                 nonEmpty(l.Route),
		TrainingElements:      nonEmpty(l.TrainingElements),
		TrainingInstructor:    nonEmpty(l.TrainingInstructor),
		InstructorCertificate: nonEmpty(l.InstructorCertificate),
		FlightConditions:      l.FlightConditions,
		Remarks:               nonEmpty(l.Remarks),
		FlightTime:            models.FlightTime(l.FlightTime),
		Performance:           models.Performance(l.Performance),
		Flagged:               l.Flagged,
		IsImported:            true,
		ImportSource:          nonEmpty(Source),
		ImportMetadata: map[string]any{
			"original_id": l.ID,
			"migrated_at": importedAt,
		},
	}
	if e.FlightConditions == nil {
		e.FlightConditions = []string{}
	}
	if l.OOOI != nil {
		o := models.OOOI(*l.OOOI)
		e.OOOI = &o
	}
	return e
}

func nonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
