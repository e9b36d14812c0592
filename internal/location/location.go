// Package location derives a project's location and climate zone from
// the project fields entered on the analysis page. It never consults the
// operator's own position: the project site and the person running the
// analysis are usually in different places.
package location

import (
	"strings"
)

// Project field keys read by Resolve.
const (
	KeyCity    = "city"
	KeyState   = "state"
	KeyZip     = "zip"
	KeyAddress = "facility_address"
)

// DefaultClimateZone is used when the state is missing or unknown. Zone 4
// is the "mixed" bucket.
const DefaultClimateZone = "zone_4"

// Data is the location snapshot attached to location-sensitive questions.
type Data struct {
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zip         string `json:"zip,omitempty"`
	CityState   string `json:"cityState,omitempty"`
	ClimateZone string `json:"climateZone"`
}

// IsZero reports whether no location was found. The climate zone alone
// does not count since it always has a default.
func (d Data) IsZero() bool {
	return d.City == "" && d.State == "" && d.Zip == "" && d.CityState == ""
}

// Map returns the populated fields keyed the way the AI backend expects.
func (d Data) Map() map[string]string {
	m := map[string]string{"climateZone": d.ClimateZone}
	for k, v := range map[string]string{
		"city":      d.City,
		"state":     d.State,
		"zip":       d.Zip,
		"cityState": d.CityState,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// Resolver derives location data from project fields. Resolve is the
// implementation used in production; tests may substitute their own.
type Resolver func(project map[string]string) Data

// Resolve derives location data from project fields.
//
// Explicit city and state win. Otherwise a facility address is split on
// commas: the second-to-last segment is the city and the last segment is
// "STATE ZIP". Otherwise a lone city or state is used as CityState.
//
// The address rule is a heuristic. Addresses with a trailing country
// segment, or a suite on its own line, mis-parse.
func Resolve(project map[string]string) Data {
	city := strings.TrimSpace(project[KeyCity])
	state := strings.TrimSpace(project[KeyState])
	zip := strings.TrimSpace(project[KeyZip])

	var d Data
	switch {
	case city != "" && state != "":
		d = Data{City: city, State: state, Zip: zip, CityState: city + ", " + state}

	case strings.TrimSpace(project[KeyAddress]) != "":
		if parsed, ok := parseAddress(project[KeyAddress]); ok {
			d = parsed
			if d.Zip == "" {
				d.Zip = zip
			}
			break
		}
		d = partial(city, state, zip)

	default:
		d = partial(city, state, zip)
	}

	d.ClimateZone = ClimateZone(d.State)
	return d
}

func partial(city, state, zip string) Data {
	d := Data{City: city, State: state, Zip: zip}
	switch {
	case city != "":
		d.CityState = city
	case state != "":
		d.CityState = state
	}
	return d
}

// parseAddress applies the last-two-segments rule. It fails when the
// address has fewer than two comma-separated segments.
func parseAddress(addr string) (Data, bool) {
	var parts []string
	for _, p := range strings.Split(addr, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return Data{}, false
	}

	city := parts[len(parts)-2]
	tokens := strings.Fields(parts[len(parts)-1])
	state := tokens[0]
	var zip string
	if len(tokens) > 1 {
		zip = tokens[1]
	}

	return Data{
		City:      city,
		State:     state,
		Zip:       zip,
		CityState: city + ", " + state,
	}, true
}
