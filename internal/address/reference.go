package address

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SonarSoftwareInc/importer/internal/metrics"
)

// refClient is the slice of the API the reference data loader needs.
type refClient interface {
	GetData(ctx context.Context, path string, v any) error
	GetPaged(ctx context.Context, path string, visit func(data json.RawMessage) error) error
}

// ReferenceData holds the country, subdivision and county tables used by the
// local fallback checks. Countries load once up front; subdivisions and
// counties load lazily per country and state, so a file that never hits the
// fallback path never pulls them.
type ReferenceData struct {
	client refClient
	logger *slog.Logger

	mu           sync.Mutex
	countries    map[string]string
	subdivisions map[string]map[string]string
	counties     map[string][]string
}

func NewReferenceData(client refClient, logger *slog.Logger) *ReferenceData {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceData{
		client:       client,
		logger:       logger.With("component", "address_reference"),
		subdivisions: make(map[string]map[string]string),
		counties:     make(map[string][]string),
	}
}

// CheckFallback decides whether a record the remote validator rejected is
// still usable. It mirrors the piecewise checks of the API's own data tables:
// the country must exist, the state must be a subdivision of that country,
// and US addresses additionally need a recognized county. A nil return means
// the record passes as-is.
func (r *ReferenceData) CheckFallback(ctx context.Context, rec Record) error {
	metrics.AddressFallbackChecks.Inc()

	countries, err := r.countryTable(ctx)
	if err != nil {
		return err
	}
	if _, ok := countries[rec.Country]; !ok {
		return fmt.Errorf("%s is not a valid country.", rec.Country)
	}

	subs, err := r.subdivisionTable(ctx, rec.Country)
	if err != nil {
		return err
	}
	if _, ok := subs[rec.State]; !ok {
		return fmt.Errorf("%s is not a valid subdivision for %s", rec.State, rec.Country)
	}

	if rec.Country == "US" {
		if rec.County == "" {
			return fmt.Errorf("The address failed to validate, and a county is required for addresses in the US.")
		}
		counties, err := r.countyTable(ctx, rec.State)
		if err != nil {
			return err
		}
		// An empty county table means the API has no data for the state, so
		// no constraint can be enforced.
		if len(counties) > 0 && !containsCounty(counties, rec.County) {
			return fmt.Errorf("The county is not a valid county for the state.")
		}
	}

	return nil
}

func (r *ReferenceData) countryTable(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countries != nil {
		return r.countries, nil
	}

	var countries map[string]string
	if err := r.client.GetData(ctx, "/api/v1/_data/countries", &countries); err != nil {
		return nil, fmt.Errorf("load countries: %w", err)
	}
	r.countries = countries
	r.logger.Debug("country table loaded", "count", len(countries))
	return r.countries, nil
}

func (r *ReferenceData) subdivisionTable(ctx context.Context, country string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.subdivisions[country]; ok {
		return subs, nil
	}

	var subs map[string]string
	path := "/api/v1/_data/subdivisions/" + country
	if err := r.client.GetData(ctx, path, &subs); err != nil {
		return nil, fmt.Errorf("load subdivisions for %s: %w", country, err)
	}
	r.subdivisions[country] = subs
	r.logger.Debug("subdivision table loaded", "country", country, "count", len(subs))
	return subs, nil
}

func (r *ReferenceData) countyTable(ctx context.Context, state string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counties, ok := r.counties[state]; ok {
		return counties, nil
	}

	var counties []string
	path := "/api/v1/_data/counties/" + state
	err := r.client.GetPaged(ctx, path, func(data json.RawMessage) error {
		var page []string
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		counties = append(counties, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load counties for %s: %w", state, err)
	}
	r.counties[state] = counties
	r.logger.Debug("county table loaded", "state", state, "count", len(counties))
	return counties, nil
}

func containsCounty(counties []string, county string) bool {
	for _, c := range counties {
		if c == county {
			return true
		}
	}
	return false
}
