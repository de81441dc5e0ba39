package calibration

import "strings"

type Unit string

const (
	Feet        Unit = "ft"
	Inches      Unit = "in"
	Yards       Unit = "yd"
	Meters      Unit = "m"
	Centimeters Unit = "cm"
	Millimeters Unit = "mm"
)

// metersPer holds the length of one unit in meters.
var metersPer = map[Unit]float64{
	Feet:        0.3048,
	Inches:      0.0254,
	Yards:       0.9144,
	Meters:      1,
	Centimeters: 0.01,
	Millimeters: 0.001,
}

// ParseUnit accepts the unit abbreviations and a few spelled-out forms.
func ParseUnit(value string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ft", "feet", "foot":
		return Feet, nil
	case "in", "inch", "inches":
		return Inches, nil
	case "yd", "yard", "yards":
		return Yards, nil
	case "m", "meter", "meters", "metre", "metres":
		return Meters, nil
	case "cm":
		return Centimeters, nil
	case "mm":
		return Millimeters, nil
	}
	return "", ErrUnknownUnit
}

func (u Unit) Valid() bool {
	_, ok := metersPer[u]
	return ok
}

// ConvertLength re-expresses value given in unit from into unit to.
func ConvertLength(value float64, from, to Unit) (float64, error) {
	fromMeters, ok := metersPer[from]
	if !ok {
		return 0, ErrUnknownUnit
	}
	toMeters, ok := metersPer[to]
	if !ok {
		return 0, ErrUnknownUnit
	}
	return value * fromMeters / toMeters, nil
}
