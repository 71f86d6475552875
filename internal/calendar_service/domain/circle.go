package domain

import (
	"strings"
)

// JammuKashmirKey is the circle whose working-day requirement is fixed by regulation.
const JammuKashmirKey = "jammu-kashmir"

// JammuKashmirWorkingDays overrides any stored requirement for JammuKashmirKey.
const JammuKashmirWorkingDays = 5

// circleAliases maps lower-cased display names and UI slugs to canonical keys.
var circleAliases = map[string]string{
	"andhra pradesh":     "andhra-pradesh",
	"ap":                 "andhra-pradesh",
	"telangana":          "andhra-pradesh",
	"assam":              "assam",
	"bihar":              "bihar",
	"bihar & jharkhand":  "bihar",
	"jharkhand":          "bihar",
	"chennai":            "chennai",
	"delhi":              "delhi",
	"delhi ncr":          "delhi",
	"new delhi":          "delhi",
	"gujarat":            "gujarat",
	"haryana":            "haryana",
	"himachal pradesh":   "himachal-pradesh",
	"hp":                 "himachal-pradesh",
	"jammu & kashmir":    JammuKashmirKey,
	"jammu and kashmir":  JammuKashmirKey,
	"jammu kashmir":      JammuKashmirKey,
	"jammu":              JammuKashmirKey,
	"kashmir":            JammuKashmirKey,
	"j&k":                JammuKashmirKey,
	"jk":                 JammuKashmirKey,
	"karnataka":          "karnataka",
	"kerala":             "kerala",
	"kolkata":            "kolkata",
	"madhya pradesh":     "madhya-pradesh",
	"mp":                 "madhya-pradesh",
	"chhattisgarh":       "madhya-pradesh",
	"maharashtra":        "maharashtra",
	"maharashtra & goa":  "maharashtra",
	"goa":                "maharashtra",
	"mumbai":             "mumbai",
	"north east":         "north-east",
	"northeast":          "north-east",
	"ne":                 "north-east",
	"odisha":             "odisha",
	"orissa":             "odisha",
	"punjab":             "punjab",
	"rajasthan":          "rajasthan",
	"tamil nadu":         "tamil-nadu",
	"tn":                 "tamil-nadu",
	"uttar pradesh east": "up-east",
	"up east":            "up-east",
	"up-e":               "up-east",
	"uttar pradesh west": "up-west",
	"up west":            "up-west",
	"up-w":               "up-west",
	"uttarakhand":        "up-west",
	"west bengal":        "west-bengal",
	"wb":                 "west-bengal",
}

// NormalizeCircle maps a display name or slug to a canonical circle key.
// Unknown input falls back to lower-case with whitespace runs replaced by
// hyphens; the result is not guaranteed to have a rule set.
func NormalizeCircle(input string) string {
	fields := strings.Fields(strings.ToLower(input))
	spaced := strings.Join(fields, " ")
	if key, ok := circleAliases[spaced]; ok {
		return key
	}
	// slugs such as "tamil-nadu" or "jammu_kashmir" resolve through the spaced form
	unslugged := strings.Join(strings.FieldsFunc(spaced, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	}), " ")
	if key, ok := circleAliases[unslugged]; ok {
		return key
	}
	return strings.Join(fields, "-")
}

// IsJammuKashmir reports whether a circle identifier resolves to the J&K circle.
func IsJammuKashmir(circle string) bool {
	return NormalizeCircle(circle) == JammuKashmirKey
}
