package generation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

// looseNumber accepts a JSON number or a numeric string. Anything else leaves
// it unset instead of failing the surrounding document.
type looseNumber struct {
	value float64
	set   bool
}

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	*n = looseNumber{}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var parsed float64
	switch typed := raw.(type) {
	case float64:
		parsed = typed
	case string:
		value, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return nil
		}
		parsed = value
	default:
		return nil
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}
	n.value, n.set = parsed, true
	return nil
}

func (n looseNumber) float() *float64 {
	if !n.set {
		return nil
	}
	value := n.value
	return &value
}

// int truncates toward zero. Values outside the int32 range are dropped.
func (n looseNumber) int() *int {
	if !n.set || n.value > math.MaxInt32 || n.value < math.MinInt32 {
		return nil
	}
	value := int(n.value)
	return &value
}

func (n looseNumber) floatOr(fallback float64) float64 {
	if value := n.float(); value != nil {
		return *value
	}
	return fallback
}

func (n looseNumber) intOr(fallback int) int {
	if value := n.int(); value != nil {
		return *value
	}
	return fallback
}

// looseText accepts a JSON string or a bare number. Other shapes decode empty.
type looseText string

func (t *looseText) UnmarshalJSON(data []byte) error {
	*t = ""
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	switch typed := raw.(type) {
	case string:
		*t = looseText(typed)
	case float64:
		*t = looseText(strconv.FormatFloat(typed, 'f', -1, 64))
	}
	return nil
}

type wireCandidate struct {
	Stops     []wireStop     `json:"stops"`
	Movements []wireMovement `json:"movements"`
}

type wireStop struct {
	Name          looseText      `json:"name"`
	Lng           looseNumber    `json:"lng"`
	Lat           looseNumber    `json:"lat"`
	Nights        looseNumber    `json:"nights"`
	Notes         looseText      `json:"notes"`
	PricePerNight looseNumber    `json:"price_per_night"`
	Activities    []wireActivity `json:"activities"`
}

type wireActivity struct {
	Title           looseText   `json:"title"`
	DayOffset       looseNumber `json:"day_offset"`
	StartTime       looseText   `json:"start_time"`
	DurationMinutes looseNumber `json:"duration_minutes"`
	Lng             looseNumber `json:"lng"`
	Lat             looseNumber `json:"lat"`
	Address         looseText   `json:"address"`
	Notes           looseText   `json:"notes"`
	Category        looseText   `json:"category"`
	Price           looseNumber `json:"price"`
}

type wireMovement struct {
	FromStopIndex   looseNumber `json:"from_stop_index"`
	ToStopIndex     looseNumber `json:"to_stop_index"`
	Type            looseText   `json:"type"`
	DurationMinutes looseNumber `json:"duration_minutes"`
	Carrier         looseText   `json:"carrier"`
	Notes           looseText   `json:"notes"`
	Price           looseNumber `json:"price"`
}

// decodeCandidate reads tool input into a candidate. Numeric fields tolerate
// floats and numeric strings; unreadable ones are left empty for ingestion to
// repair, and movements whose endpoints cannot be read are dropped.
func decodeCandidate(input []byte) (itinerary.Candidate, error) {
	var wire wireCandidate
	if err := json.Unmarshal(input, &wire); err != nil {
		return itinerary.Candidate{}, err
	}

	candidate := itinerary.Candidate{
		Stops: make([]itinerary.CandidateStop, 0, len(wire.Stops)),
	}
	for _, stop := range wire.Stops {
		activities := make([]itinerary.CandidateActivity, 0, len(stop.Activities))
		for _, activity := range stop.Activities {
			activities = append(activities, itinerary.CandidateActivity{
				Title:           string(activity.Title),
				DayOffset:       activity.DayOffset.intOr(0),
				StartTime:       string(activity.StartTime),
				DurationMinutes: activity.DurationMinutes.int(),
				Lng:             activity.Lng.float(),
				Lat:             activity.Lat.float(),
				Address:         string(activity.Address),
				Notes:           string(activity.Notes),
				Category:        string(activity.Category),
				Price:           activity.Price.float(),
			})
		}
		candidate.Stops = append(candidate.Stops, itinerary.CandidateStop{
			Name:          string(stop.Name),
			Lng:           stop.Lng.floatOr(0),
			Lat:           stop.Lat.floatOr(0),
			Nights:        stop.Nights.intOr(0),
			Notes:         string(stop.Notes),
			PricePerNight: stop.PricePerNight.float(),
			Activities:    activities,
		})
	}

	for _, movement := range wire.Movements {
		from, to := movement.FromStopIndex.int(), movement.ToStopIndex.int()
		if from == nil || to == nil {
			continue
		}
		candidate.Movements = append(candidate.Movements, itinerary.CandidateMovement{
			FromStopIndex:   from,
			ToStopIndex:     to,
			Type:            string(movement.Type),
			DurationMinutes: movement.DurationMinutes.int(),
			Carrier:         string(movement.Carrier),
			Notes:           string(movement.Notes),
			Price:           movement.Price.float(),
		})
	}
	return candidate, nil
}
