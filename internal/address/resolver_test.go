package address

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/sonar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI doubles the sonar client for resolver and reference data tests.
type fakeAPI struct {
	mu      sync.Mutex
	doFn    func(method, path string, body any) (*sonar.Response, error)
	doCalls int

	dataJSON  map[string]string
	pagedJSON map[string][]string
	dataCalls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		dataJSON:  make(map[string]string),
		pagedJSON: make(map[string][]string),
		dataCalls: make(map[string]int),
	}
}

func (f *fakeAPI) Do(_ context.Context, method, path string, body any) (*sonar.Response, error) {
	f.mu.Lock()
	f.doCalls++
	fn := f.doFn
	f.mu.Unlock()
	if fn == nil {
		return &sonar.Response{StatusCode: 200, Body: []byte(`{"data":{}}`)}, nil
	}
	return fn(method, path, body)
}

func (f *fakeAPI) GetData(_ context.Context, path string, v any) error {
	f.mu.Lock()
	f.dataCalls[path]++
	raw, ok := f.dataJSON[path]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("unexpected path %s", path)
	}
	return json.Unmarshal([]byte(raw), v)
}

func (f *fakeAPI) GetPaged(_ context.Context, path string, visit func(json.RawMessage) error) error {
	f.mu.Lock()
	f.dataCalls[path]++
	pages := f.pagedJSON[path]
	f.mu.Unlock()
	for _, page := range pages {
		if err := visit(json.RawMessage(page)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doCalls
}

func newTestResolver(t *testing.T, api *fakeAPI) *Resolver {
	t.Helper()
	cache := NewCache(64, time.Hour, nil, nil)
	ref := NewReferenceData(api, nil)
	return NewResolver(api, cache, ref, 4, Defaults{}, t.TempDir(), nil)
}

func validatedBody(rec Record) []byte {
	body, _ := json.Marshal(map[string]Record{"data": rec})
	return body
}

func TestResolve_RemoteSuccessIsCached(t *testing.T) {
	t.Parallel()

	corrected := Record{Line1: "100 Main St", City: "Springfield", State: "MO", Zip: "65801-1234", Country: "US"}
	api := newFakeAPI()
	api.doFn = func(_, path string, body any) (*sonar.Response, error) {
		assert.Equal(t, "/api/v1/_data/validate_address", path)
		assert.Empty(t, body.(Record).County, "the validator is queried without the county")
		return &sonar.Response{StatusCode: 200, Body: validatedBody(corrected)}, nil
	}
	r := newTestResolver(t, api)

	input := Record{Line1: "100 main", City: "springfield", State: "MO", County: "Greene", Zip: "65801", Country: "US"}
	got, err := r.Resolve(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, corrected, got)

	// Same address again: served from cache, no second remote call.
	got, err = r.Resolve(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, corrected, got)
	assert.Equal(t, 1, api.calls())
}

func TestResolve_KeepsOriginalCoordinates(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.doFn = func(_, _ string, _ any) (*sonar.Response, error) {
		return &sonar.Response{StatusCode: 200, Body: validatedBody(Record{Line1: "1 Elm St", Latitude: "40.0", Longitude: "-73.0"})}, nil
	}
	r := newTestResolver(t, api)

	got, err := r.Resolve(context.Background(), Record{Line1: "1 Elm", Latitude: "40.123", Longitude: "-73.456"})
	require.NoError(t, err)
	assert.Equal(t, "40.123", got.Latitude)
	assert.Equal(t, "-73.456", got.Longitude)
}

func TestResolve_RejectionFallsBackToReferenceChecks(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.doFn = func(_, _ string, _ any) (*sonar.Response, error) {
		return &sonar.Response{StatusCode: 422, Body: []byte(`{"error":{"message":"bad address"}}`)}, nil
	}
	api.dataJSON["/api/v1/_data/countries"] = `{"US":"United States"}`
	api.dataJSON["/api/v1/_data/subdivisions/US"] = `{"MO":"Missouri"}`
	api.pagedJSON["/api/v1/_data/counties/MO"] = []string{`["Greene","Jackson"]`}
	r := newTestResolver(t, api)

	input := Record{Line1: "1 Elm", City: "Springfield", State: "MO", County: "Greene", Zip: "65801", Country: "US"}
	got, err := r.Resolve(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, input, got, "fallback survivors pass through unchanged")

	// Fallback survivors are not cached, so the remote validator is
	// consulted again next time.
	_, err = r.Resolve(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls())
}

func TestResolve_RejectionAndFailedFallback(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.doFn = func(_, _ string, _ any) (*sonar.Response, error) {
		return &sonar.Response{StatusCode: 422, Body: []byte(`{"error":{"message":"bad address"}}`)}, nil
	}
	api.dataJSON["/api/v1/_data/countries"] = `{"US":"United States"}`
	r := newTestResolver(t, api)

	_, err := r.Resolve(context.Background(), Record{Line1: "1 Elm", State: "XX", Country: "ZZ"})
	require.EqualError(t, err, "ZZ is not a valid country.")
}

func writeAccountRows(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
	return path
}

func accountCSVRow(id, line1, city, state, zip, country string) []string {
	row := make([]string, 25)
	row[0] = id
	row[1] = "Account " + id
	row[2], row[3] = "1", "1"
	row[ColLine1] = line1
	row[ColCity] = city
	row[ColState] = state
	row[ColZip] = zip
	row[ColCountry] = country
	return row
}

func TestValidateFile(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.doFn = func(_, _ string, body any) (*sonar.Response, error) {
		rec := body.(Record)
		if rec.Line1 == "13 Nowhere Rd" {
			return &sonar.Response{StatusCode: 422, Body: []byte(`{"error":{"message":"could not geocode"}}`)}, nil
		}
		rec.Line1 = rec.Line1 + " Validated"
		return &sonar.Response{StatusCode: 200, Body: validatedBody(rec)}, nil
	}
	// Reference tables that reject the bad row's state.
	api.dataJSON["/api/v1/_data/countries"] = `{"US":"United States"}`
	api.dataJSON["/api/v1/_data/subdivisions/US"] = `{"MO":"Missouri"}`
	r := newTestResolver(t, api)

	path := writeAccountRows(t, [][]string{
		accountCSVRow("1", "100 Main St", "Springfield", "MO", "65801", "US"),
		accountCSVRow("2", "100 Main St", "Springfield", "MO", "65801", "US"),
		accountCSVRow("3", "13 Nowhere Rd", "Nope", "XX", "00000", "US"),
	})

	summary, err := r.ValidateFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Successes)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 2, api.calls(), "duplicate addresses share one validation call")
	assert.Equal(t, 0, summary.CacheHits)
	assert.Equal(t, 2, summary.CacheMisses, "one miss per distinct address")

	successes, err := os.ReadFile(summary.SuccessLog)
	require.NoError(t, err)
	assert.Contains(t, string(successes), "Validation succeeded for ID 1")
	assert.Contains(t, string(successes), "Validation succeeded for ID 2")

	f, err := os.Open(summary.ValidatedFile)
	require.NoError(t, err)
	defer f.Close()
	validated, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, validated, 2)
	for _, row := range validated {
		assert.Equal(t, "100 Main St Validated", row[ColLine1])
	}

	ff, err := os.Open(summary.FailureLog)
	require.NoError(t, err)
	defer ff.Close()
	failures, err := csv.NewReader(ff).ReadAll()
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "3", failures[0][0])
	assert.Equal(t, "could not geocode", failures[0][len(failures[0])-1])
}

func TestValidateFile_SecondRunHitsCache(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.doFn = func(_, _ string, body any) (*sonar.Response, error) {
		return &sonar.Response{StatusCode: 200, Body: validatedBody(body.(Record))}, nil
	}
	r := newTestResolver(t, api)

	path := writeAccountRows(t, [][]string{
		accountCSVRow("1", "100 Main St", "Springfield", "MO", "65801", "US"),
	})

	_, err := r.ValidateFile(context.Background(), path)
	require.NoError(t, err)

	summary, err := r.ValidateFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CacheHits)
	assert.Equal(t, 0, summary.CacheMisses)
	assert.Equal(t, 1, api.calls(), "no remote call on the cached run")
}

func TestValidateFile_PreflightFailure(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeAPI())
	path := writeAccountRows(t, [][]string{
		accountCSVRow("1", "100 Main St", "Springfield", "", "65801", "US"),
	})

	_, err := r.ValidateFile(context.Background(), path)
	require.EqualError(t, err, "In the address validation call, column number 11 is required, and it is empty on row 1.")
}
