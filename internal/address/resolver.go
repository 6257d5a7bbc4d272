package address

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/SonarSoftwareInc/importer/internal/importer"
	"github.com/SonarSoftwareInc/importer/internal/metrics"
	"github.com/SonarSoftwareInc/importer/internal/sonar"
)

const validatePath = "/api/v1/_data/validate_address"

// apiClient is the slice of *sonar.Client the resolver uses.
type apiClient interface {
	Do(ctx context.Context, method, path string, body any) (*sonar.Response, error)
	GetData(ctx context.Context, path string, v any) error
	GetPaged(ctx context.Context, path string, visit func(data json.RawMessage) error) error
}

// Resolver turns raw address columns into validated addresses. Lookup order:
// the two-level cache first, then the remote validator, then the local
// reference-data fallback for addresses the validator rejects. Only
// validator-corrected addresses enter the cache; fallback survivors pass
// through unchanged and are revalidated on the next run.
type Resolver struct {
	client      apiClient
	cache       *Cache
	ref         *ReferenceData
	concurrency int
	defaults    Defaults
	logDir      string
	logger      *slog.Logger
}

func NewResolver(client apiClient, cache *Cache, ref *ReferenceData, concurrency int, defaults Defaults, logDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:      client,
		cache:       cache,
		ref:         ref,
		concurrency: concurrency,
		defaults:    defaults,
		logDir:      logDir,
		logger:      logger.With("component", "address_resolver"),
	}
}

// FromRow extracts the address columns of a row applying the resolver's
// configured defaults.
func (r *Resolver) FromRow(row importer.Row) Record {
	return FromRow(row, r.defaults)
}

// Resolve validates a single address. Fulfilled validator responses replace
// the submitted fields; when the original row carried both coordinates they
// win over the validator's. Rejected addresses fall back to the piecewise
// reference checks and pass through unchanged when those succeed.
func (r *Resolver) Resolve(ctx context.Context, rec Record) (Record, error) {
	fp := rec.Fingerprint()
	if cached, ok := r.cache.Get(ctx, fp); ok {
		return keepOriginalCoords(cached, rec), nil
	}

	metrics.AddressRemoteValidations.Inc()
	resp, err := r.client.Do(ctx, http.MethodPost, validatePath, rec.WithoutCounty())
	if err == nil && resp.StatusCode <= 201 {
		var validated Record
		if derr := resp.Data(&validated); derr == nil {
			r.cache.Put(ctx, fp, validated)
			return keepOriginalCoords(validated, rec), nil
		}
	}

	if ferr := r.ref.CheckFallback(ctx, rec); ferr != nil {
		return Record{}, ferr
	}
	return rec, nil
}

// ValidateFile runs the batch address validation pass over an account import
// file: pre-flight the address columns, resolve every distinct address once,
// and write a corrected copy of the file for the subsequent import. Rows
// whose address cannot be resolved land in the failure log with the remote
// rejection reason.
func (r *Resolver) ValidateFile(ctx context.Context, path string) (importer.Summary, error) {
	rows, err := importer.ReadFile(path)
	if err != nil {
		return importer.Summary{}, err
	}

	validator := &importer.FileValidator{
		Entity:   "the address validation call",
		Required: []int{ColLine1, ColState, ColCountry},
	}
	if err := validator.Validate(rows); err != nil {
		return importer.Summary{}, err
	}

	rec, err := importer.NewRecorder(r.logDir, "address_validator", r.logger)
	if err != nil {
		return importer.Summary{}, err
	}
	defer rec.Close()

	tmp, err := os.CreateTemp(r.logDir, "validated_addresses_*.csv")
	if err != nil {
		return importer.Summary{}, fmt.Errorf("create validated file: %w", err)
	}
	out := csv.NewWriter(tmp)

	startHits, startMisses := r.cache.Stats()

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = FromRow(row, r.defaults)
	}

	// Coalesce duplicate addresses: one lookup per distinct fingerprint,
	// fanned back out to every owning row.
	var distinct []string
	owners := make(map[string][]int)
	reps := make(map[string]Record)
	for i, record := range records {
		fp := record.Fingerprint()
		if _, seen := owners[fp]; !seen {
			distinct = append(distinct, fp)
			reps[fp] = record
		}
		owners[fp] = append(owners[fp], i)
	}

	// resolved and failed run from a single goroutine only: the cache
	// pre-pass below, then the dispatcher's outcome consumer.
	resolved := func(i int, validated Record) {
		rec.Success(fmt.Sprintf("Validation succeeded for ID %s", rows[i].Field(0)))
		if werr := out.Write(MergeIntoRow(validated, rows[i])); werr != nil {
			r.logger.Error("validated file write failed", "row", i+1, "error", werr)
		}
	}

	var pending []string
	for _, fp := range distinct {
		if cached, ok := r.cache.Get(ctx, fp); ok {
			for _, i := range owners[fp] {
				resolved(i, cached)
			}
			continue
		}
		pending = append(pending, fp)
	}

	d := importer.NewDispatcher(r.client, r.concurrency, "address_validator", r.logger)
	requests := importer.Produce(ctx, len(pending), func(i int) importer.Request {
		metrics.AddressRemoteValidations.Inc()
		return importer.Request{
			Index:  i,
			Method: http.MethodPost,
			Path:   validatePath,
			Body:   reps[pending[i]].WithoutCounty(),
		}
	})

	derr := d.Dispatch(ctx, requests, func(o importer.Outcome) {
		fp := pending[o.Index]
		original := reps[fp]

		if o.OK {
			if validated, ok := decodeValidated(o.Body); ok {
				r.cache.Put(ctx, fp, validated)
				for _, i := range owners[fp] {
					resolved(i, validated)
				}
				return
			}
			o.Reason = "validator returned an unreadable response"
		}

		// Rejected by the validator. The address may still be usable if its
		// parts check out against the reference tables.
		if ferr := r.ref.CheckFallback(ctx, original); ferr == nil {
			for _, i := range owners[fp] {
				resolved(i, original)
			}
			return
		}
		for _, i := range owners[fp] {
			rec.Failure(rows[i], o.Reason)
		}
	})

	out.Flush()
	if werr := errors.Join(out.Error(), tmp.Close()); werr != nil {
		r.logger.Error("validated file close failed", "error", werr)
	}

	summary := rec.Summary()
	summary.ValidatedFile = tmp.Name()
	hits, misses := r.cache.Stats()
	summary.CacheHits = int(hits - startHits)
	summary.CacheMisses = int(misses - startMisses)

	if derr != nil {
		return summary, derr
	}

	if summary.Successes+summary.Failures != len(rows) {
		metrics.ReconciliationMismatches.WithLabelValues("address_validator").Inc()
		r.logger.Warn("outcome reconciliation mismatch",
			"rows", len(rows),
			"successes", summary.Successes,
			"failures", summary.Failures,
		)
	}

	r.logger.Info("address validation finished",
		"rows", len(rows),
		"successes", summary.Successes,
		"failures", summary.Failures,
		"cache_hits", summary.CacheHits,
		"validated_file", summary.ValidatedFile,
	)
	return summary, nil
}

func decodeValidated(body []byte) (Record, bool) {
	var env struct {
		Data Record `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Record{}, false
	}
	return env.Data, true
}

func keepOriginalCoords(validated, original Record) Record {
	if original.Latitude != "" && original.Longitude != "" {
		validated.Latitude = original.Latitude
		validated.Longitude = original.Longitude
	}
	return validated
}
