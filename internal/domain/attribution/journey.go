package attribution

import (
	"sort"
	"time"
)

// AssembleJourney filters a customer's touchpoints to the attribution
// window [conversionAt − windowDays, conversionAt] and orders them
// ascending by timestamp, breaking ties by touchpoint ID ascending so the
// result is deterministic. Touchpoints strictly after the conversion are
// excluded. An empty result is a valid journey, not an error.
func AssembleJourney(customerID string, touchpoints []*Touchpoint, conversionAt time.Time, windowDays int) *Journey {
	windowStart := conversionAt.AddDate(0, 0, -windowDays)

	inWindow := make([]*Touchpoint, 0, len(touchpoints))
	for _, tp := range touchpoints {
		if tp.Timestamp.Before(windowStart) || tp.Timestamp.After(conversionAt) {
			continue
		}
		inWindow = append(inWindow, tp)
	}

	sort.Slice(inWindow, func(i, j int) bool {
		if !inWindow[i].Timestamp.Equal(inWindow[j].Timestamp) {
			return inWindow[i].Timestamp.Before(inWindow[j].Timestamp)
		}
		return inWindow[i].ID < inWindow[j].ID
	})

	return &Journey{
		CustomerID:  customerID,
		WindowStart: windowStart,
		WindowEnd:   conversionAt,
		Touchpoints: inWindow,
	}
}
