package address

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/SonarSoftwareInc/importer/internal/importer"
)

// Column layout of address-bearing import rows (account file format).
const (
	ColLine1     = 7
	ColLine2     = 8
	ColCity      = 9
	ColState     = 10
	ColCounty    = 11
	ColZip       = 12
	ColCountry   = 13
	ColLatitude  = 14
	ColLongitude = 15
)

// Record is one postal address in the API's wire shape. The remote validator
// is queried without the county, since counties are locally authoritative and
// frequently stale upstream; the with-county variant feeds local fallback.
type Record struct {
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	County    string `json:"county,omitempty"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// Defaults fill blank city/county columns, mirroring the DEFAULT_CITY and
// DEFAULT_COUNTY environment settings.
type Defaults struct {
	City   string
	County string
}

// FromRow extracts the address columns of a row into a Record.
func FromRow(row importer.Row, d Defaults) Record {
	city := row.Field(ColCity)
	if city == "" {
		city = d.City
	}
	county := row.Field(ColCounty)
	if county == "" {
		county = d.County
	}

	return Record{
		Line1:     row.Field(ColLine1),
		Line2:     row.Field(ColLine2),
		City:      city,
		State:     normalizeState(row.Field(ColState)),
		County:    county,
		Zip:       row.Field(ColZip),
		Country:   row.Field(ColCountry),
		Latitude:  row.Field(ColLatitude),
		Longitude: row.Field(ColLongitude),
	}
}

// WithoutCounty is the variant submitted to the remote validator.
func (r Record) WithoutCounty() Record {
	out := r
	out.County = ""
	return out
}

// Fingerprint derives the content-based cache key: normalized, case-folded,
// punctuation-stripped concatenation of the identifying fields. Identical
// addresses across different rows and runs share one key.
func (r Record) Fingerprint() string {
	parts := []string{r.Line1, r.City, r.State, r.Zip, r.Country}
	for i, p := range parts {
		parts[i] = normalizeComponent(p)
	}
	return strings.Join(parts, "|")
}

// PayloadFields returns the non-empty address fields for embedding in an
// entity request body.
func (r Record) PayloadFields() map[string]any {
	out := make(map[string]any, 9)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("line1", r.Line1)
	set("line2", r.Line2)
	set("city", r.City)
	set("state", r.State)
	set("county", r.County)
	set("zip", r.Zip)
	set("country", r.Country)
	set("latitude", r.Latitude)
	set("longitude", r.Longitude)
	return out
}

// MergeIntoRow writes a validated record back over the address columns of a
// row, producing a corrected copy. Validated fields win only when non-empty;
// the zip keeps whichever value is longer once spaces are removed, since
// validators sometimes return a truncated code; latitude and longitude are
// filled only when the original row left them blank.
func MergeIntoRow(validated Record, row importer.Row) importer.Row {
	out := row.Clone()
	for len(out) <= ColLongitude {
		out = append(out, "")
	}

	overwrite := func(col int, v string) {
		if v != "" {
			out[col] = v
		}
	}
	overwrite(ColLine1, validated.Line1)
	overwrite(ColCity, validated.City)
	overwrite(ColState, validated.State)
	overwrite(ColCounty, validated.County)
	overwrite(ColCountry, validated.Country)

	out[ColZip] = preferLongerZip(row.Field(ColZip), validated.Zip)

	if row.Field(ColLatitude) == "" {
		out[ColLatitude] = validated.Latitude
	}
	if row.Field(ColLongitude) == "" {
		out[ColLongitude] = validated.Longitude
	}

	return out
}

func preferLongerZip(original, validated string) string {
	if validated == "" {
		return original
	}
	if original == "" {
		return validated
	}
	stripped := func(s string) int { return len(strings.ReplaceAll(s, " ", "")) }
	if stripped(validated) > stripped(original) {
		return validated
	}
	return original
}

// normalizeState uppercases two-letter codes and title-cases full names.
func normalizeState(s string) string {
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	return titleCase(s)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + w[size:]
	}
	return strings.Join(words, " ")
}

func normalizeComponent(s string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(s) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		}
	}
	return b.String()
}
