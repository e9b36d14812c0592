package location

import "strings"

// stateZones maps USPS codes to the predominant IECC climate zone of the
// state. Several states span more than one zone; the entry is the zone
// covering most of the population.
var stateZones = map[string]string{
	"HI": "zone_1",

	"TX": "zone_2", "LA": "zone_2", "FL": "zone_2", "AZ": "zone_2",

	"CA": "zone_3", "NV": "zone_3", "GA": "zone_3", "AL": "zone_3",
	"MS": "zone_3", "SC": "zone_3", "OK": "zone_3", "AR": "zone_3",

	"NC": "zone_4", "TN": "zone_4", "KY": "zone_4", "VA": "zone_4",
	"MD": "zone_4", "DE": "zone_4", "MO": "zone_4", "KS": "zone_4",
	"NM": "zone_4", "OR": "zone_4", "WA": "zone_4", "NJ": "zone_4",

	"PA": "zone_5", "OH": "zone_5", "IN": "zone_5", "IL": "zone_5",
	"IA": "zone_5", "NE": "zone_5", "CO": "zone_5", "UT": "zone_5",
	"ID": "zone_5", "CT": "zone_5", "MA": "zone_5", "RI": "zone_5",
	"NY": "zone_5", "MI": "zone_5", "WV": "zone_5",

	"WI": "zone_6", "MN": "zone_6", "MT": "zone_6", "WY": "zone_6",
	"SD": "zone_6", "VT": "zone_6", "NH": "zone_6", "ME": "zone_6",

	"ND": "zone_7",

	"AK": "zone_8",
}

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
}

// StateCode normalizes a state name or USPS abbreviation to the
// abbreviation. It returns "" for anything it does not recognize.
func StateCode(state string) string {
	s := strings.Join(strings.Fields(strings.ToLower(strings.TrimSuffix(strings.TrimSpace(state), "."))), " ")
	if code, ok := stateNames[s]; ok {
		return code
	}
	if code := strings.ToUpper(s); len(code) == 2 {
		if _, ok := stateZones[code]; ok {
			return code
		}
	}
	return ""
}

// ClimateZone returns the zone for a state name or abbreviation, or
// DefaultClimateZone when the state is unknown.
func ClimateZone(state string) string {
	if zone, ok := stateZones[StateCode(state)]; ok {
		return zone
	}
	return DefaultClimateZone
}
