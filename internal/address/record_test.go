package address

import (
	"testing"

	"github.com/SonarSoftwareInc/importer/internal/importer"
	"github.com/stretchr/testify/assert"
)

func accountRow(fields map[int]string) importer.Row {
	row := make(importer.Row, 25)
	for col, v := range fields {
		row[col] = v
	}
	return row
}

func TestFromRow(t *testing.T) {
	t.Parallel()

	row := accountRow(map[int]string{
		ColLine1:   " 100 Main St ",
		ColCity:    "Springfield",
		ColState:   "mo",
		ColZip:     "65801",
		ColCountry: "US",
	})

	rec := FromRow(row, Defaults{County: "Greene"})
	assert.Equal(t, "100 Main St", rec.Line1)
	assert.Equal(t, "Springfield", rec.City)
	assert.Equal(t, "MO", rec.State, "two-letter states are uppercased")
	assert.Equal(t, "Greene", rec.County, "blank county takes the default")
	assert.Equal(t, "US", rec.Country)
}

func TestFromRow_Defaults(t *testing.T) {
	t.Parallel()

	row := accountRow(map[int]string{ColLine1: "1 Elm", ColState: "new york", ColCountry: "US"})
	rec := FromRow(row, Defaults{City: "Albany"})
	assert.Equal(t, "Albany", rec.City)
	assert.Equal(t, "New York", rec.State, "full state names are title-cased")
}

func TestFromRow_MultiByteState(t *testing.T) {
	t.Parallel()

	row := accountRow(map[int]string{ColLine1: "12 Rue Principale", ColState: "québec", ColCountry: "CA"})
	rec := FromRow(row, Defaults{})
	assert.Equal(t, "Québec", rec.State, "accented first letters upcase without corruption")
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Record{Line1: "100 Main St.", City: "Springfield", State: "MO", Zip: "65801", Country: "US"}
	b := Record{Line1: " 100 MAIN ST ", City: "springfield", State: "mo", Zip: "65801", Country: "us"}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "punctuation and case do not change identity")

	c := a
	c.Line1 = "101 Main St."
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	d := a
	d.County = "Greene"
	assert.Equal(t, a.Fingerprint(), d.Fingerprint(), "county is not part of identity")
}

func TestWithoutCounty(t *testing.T) {
	t.Parallel()

	rec := Record{Line1: "1 Elm", County: "Greene"}
	assert.Empty(t, rec.WithoutCounty().County)
	assert.Equal(t, "Greene", rec.County, "receiver is unchanged")
}

func TestMergeIntoRow(t *testing.T) {
	t.Parallel()

	row := accountRow(map[int]string{
		0:            "42",
		ColLine1:     "100 main",
		ColCity:      "springfield",
		ColState:     "MO",
		ColZip:       "65801",
		ColCountry:   "US",
		ColLatitude:  "37.2",
		ColLongitude: "-93.3",
	})
	validated := Record{
		Line1: "100 Main St", City: "Springfield", State: "MO", County: "Greene",
		Zip: "65801-1234", Country: "US", Latitude: "37.215", Longitude: "-93.298",
	}

	merged := MergeIntoRow(validated, row)

	assert.Equal(t, "42", merged.Field(0), "non-address columns are untouched")
	assert.Equal(t, "100 Main St", merged.Field(ColLine1))
	assert.Equal(t, "Greene", merged.Field(ColCounty))
	assert.Equal(t, "65801-1234", merged.Field(ColZip), "longer zip wins")
	assert.Equal(t, "37.2", merged.Field(ColLatitude), "original coordinates are kept")
	assert.Equal(t, "-93.3", merged.Field(ColLongitude))

	assert.Equal(t, "100 main", row.Field(ColLine1), "input row is not mutated")
}

func TestMergeIntoRow_FillsBlankCoordinates(t *testing.T) {
	t.Parallel()

	row := accountRow(map[int]string{ColLine1: "1 Elm", ColZip: "10001"})
	validated := Record{Line1: "1 Elm St", Zip: "10001", Latitude: "40.75", Longitude: "-73.99"}

	merged := MergeIntoRow(validated, row)
	assert.Equal(t, "40.75", merged.Field(ColLatitude))
	assert.Equal(t, "-73.99", merged.Field(ColLongitude))
}

func TestMergeIntoRow_ExtendsShortRows(t *testing.T) {
	t.Parallel()

	row := importer.Row{"42", "", "", "", "", "", "", "1 Elm"}
	merged := MergeIntoRow(Record{Line1: "1 Elm St", Longitude: "-73.99"}, row)
	assert.Equal(t, "1 Elm St", merged.Field(ColLine1))
	assert.Equal(t, "-73.99", merged.Field(ColLongitude))
}

func TestPreferLongerZip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, original, validated, want string
	}{
		{"validated longer", "65801", "65801-1234", "65801-1234"},
		{"original longer", "65801-1234", "65801", "65801-1234"},
		{"validated blank", "65801", "", "65801"},
		{"original blank", "", "65801", "65801"},
		{"spaces ignored", "SW1A 1AA", "SW1A1AA4", "SW1A1AA4"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, preferLongerZip(tc.original, tc.validated))
		})
	}
}
