package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/address"
	"github.com/SonarSoftwareInc/importer/internal/config"
	"github.com/SonarSoftwareInc/importer/internal/importer"
	"github.com/SonarSoftwareInc/importer/internal/importer/entity"
	"github.com/SonarSoftwareInc/importer/internal/sonar"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		entityName     = flag.String("entity", "", "record type to import: accounts, contacts, services, billing_parameters, next_bill_date, notes, invoices")
		filePath       = flag.String("file", "", "path to the CSV import file")
		noteEntity     = flag.String("note-entity", "accounts", "entity type notes attach to")
		debitServiceID = flag.Int("debit-service-id", 0, "debit adjustment service ID for invoice generation")
		validateOnly   = flag.Bool("validate-addresses", false, "run the address validation pass and write a corrected file without importing")
		flushCache     = flag.Bool("flush-cache", false, "flush the persistent address cache and exit")
	)
	flag.Parse()

	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, options{
		entity:         *entityName,
		file:           *filePath,
		noteEntity:     *noteEntity,
		debitServiceID: *debitServiceID,
		validateOnly:   *validateOnly,
		flushCache:     *flushCache,
	}); err != nil {
		logger.Error("importer failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	entity         string
	file           string
	noteEntity     string
	debitServiceID int
	validateOnly   bool
	flushCache     bool
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) error {
	client, err := sonar.New(sonar.Config{
		URI:      cfg.Sonar.URI,
		Username: cfg.Sonar.Username,
		Password: cfg.Sonar.Password,
		Timeout:  cfg.Sonar.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	// Without Redis the cache is in-process only and resets between runs.
	var store address.Store
	if cfg.Address.RedisURL != "" {
		store, err = address.NewRedisStore(cfg.Address.RedisURL, cfg.Address.CacheTTL)
		if err != nil {
			return fmt.Errorf("connect address cache store: %w", err)
		}
		defer store.Close()
	} else {
		logger.Warn("REDIS_URL not set, address cache will not persist across runs")
	}
	cache := address.NewCache(cfg.Address.CacheCapacity, cfg.Address.CacheTTL, store, logger)

	if opts.flushCache {
		if err := cache.Flush(ctx); err != nil {
			return fmt.Errorf("flush address cache: %w", err)
		}
		fmt.Println("Address cache flushed.")
		return nil
	}

	if cfg.Server.MetricsPort > 0 {
		go runMetricsServer(ctx, cfg.Server.MetricsPort, logger)
	}

	ref := address.NewReferenceData(client, logger)
	defaults := address.Defaults{City: cfg.Address.DefaultCity, County: cfg.Address.DefaultCounty}
	resolver := address.NewResolver(client, cache, ref, cfg.Import.Concurrency, defaults, cfg.Import.LogDir, logger)

	if opts.file == "" {
		return fmt.Errorf("-file is required")
	}

	if opts.validateOnly {
		summary, err := resolver.ValidateFile(ctx, opts.file)
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	}

	if opts.entity == "invoices" {
		if opts.debitServiceID < 1 {
			return fmt.Errorf("-debit-service-id is required for invoice generation")
		}
		runner := entity.NewInvoiceRunner(client, opts.debitServiceID, cfg.Import.Concurrency, cfg.Import.LogDir, logger)
		summary, err := runner.Run(ctx, opts.file)
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	}

	var ent importer.Entity
	switch opts.entity {
	case "accounts":
		ent = entity.NewAccounts(resolver)
	case "contacts":
		ent = entity.NewContacts()
	case "services":
		ent = entity.NewServices()
	case "billing_parameters":
		ent = entity.NewBillingParameters()
	case "next_bill_date":
		ent = entity.NewNextBillDates()
	case "notes":
		ent, err = entity.NewNotes(opts.noteEntity)
		if err != nil {
			return err
		}
	case "":
		return fmt.Errorf("-entity is required")
	default:
		return fmt.Errorf("unknown entity %q", opts.entity)
	}

	im := importer.New(client, cfg.Import.Concurrency, cfg.Import.LogDir, logger)
	summary, err := im.Run(ctx, ent, opts.file)
	if err != nil {
		return err
	}
	printSummary(summary)

	hits, misses := cache.Stats()
	if hits+misses > 0 {
		fmt.Printf("Address cache hits: %d, misses: %d\n", hits, misses)
	}
	return nil
}

func printSummary(s importer.Summary) {
	fmt.Printf("There were %d successes and %d failures.\n", s.Successes, s.Failures)
	fmt.Printf("Success log: %s\n", s.SuccessLog)
	fmt.Printf("Failure log: %s\n", s.FailureLog)
	if s.ValidatedFile != "" {
		fmt.Printf("Validated file: %s\n", s.ValidatedFile)
		fmt.Printf("Address cache hits: %d, misses: %d\n", s.CacheHits, s.CacheMisses)
	}
}

func runMetricsServer(ctx context.Context, port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", "error", err)
	}
}
