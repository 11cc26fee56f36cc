package controller

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Phrases holds every sentence the device says.
type Phrases struct {
	Started         string
	ShuttingDown    string
	LowBattery      string
	CriticalBattery string

	// Labels maps detector labels to spoken names.
	Labels map[string]string
}

// DefaultPhrases returns the English phrase set.
func DefaultPhrases() Phrases {
	return Phrases{
		Started:         "System started",
		ShuttingDown:    "Shutting down",
		LowBattery:      "Battery low",
		CriticalBattery: "Battery critical. Shutting down.",
		Labels: map[string]string{
			"person":     "person",
			"car":        "car",
			"dog":        "dog",
			"cat":        "cat",
			"bird":       "bird",
			"bicycle":    "bicycle",
			"motorcycle": "motorcycle",
			"bus":        "bus",
			"truck":      "truck",
		},
	}
}

var vehicles = map[string]bool{
	"car": true, "bus": true, "truck": true, "motorcycle": true, "bicycle": true,
}

// IsPerson reports whether label denotes a person.
func IsPerson(label string) bool {
	return label == "person"
}

// IsVehicle reports whether label denotes a road vehicle.
func IsVehicle(label string) bool {
	return vehicles[label]
}

// Name returns the spoken name for label, falling back to the label itself.
func (p Phrases) Name(label string) string {
	if name, ok := p.Labels[label]; ok {
		return name
	}
	return strings.ReplaceAll(label, "_", " ")
}

// Detection formats the announcement for one detected label.
func (p Phrases) Detection(label string, announcePerson, announceVehicle bool) string {
	name := p.Name(label)
	switch {
	case announcePerson && IsPerson(label):
		return "Attention! " + capitalize(name) + " detected"
	case announceVehicle && IsVehicle(label):
		return "Caution! " + capitalize(name) + " nearby"
	default:
		return capitalize(name) + " detected"
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
