package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ghstats/config"
	"ghstats/github"
	"ghstats/httputil"
	"ghstats/logging"
	"ghstats/metrics"
	"ghstats/models"
	"ghstats/notify"
	"ghstats/pipeline"
	"ghstats/scheduler"
	"ghstats/storage"
	"ghstats/workers"
)

var (
	syncNow = flag.Bool("sync", false, "Run one collection and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogFile, cfg.LogMaxBytes)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting ghstats...")
	log.Printf("Sources: %s, %d repositories per query, store %s (serverless=%t)",
		cfg.SourcesFile, cfg.Query.ReposPerBatch, cfg.Store.Driver, cfg.Store.ServerlessMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := httputil.NewClients(cfg.GitHub.Token)

	// SQLite always holds the operational journal and command queue
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	var docs pipeline.DocumentStore = sqliteStore
	if cfg.Store.Driver == "postgres" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Store.DatabaseURL))
		docs = pgStore
	}

	publisher, closePublisher, err := newEventPublisher(cfg.Events, clients.API)
	if err != nil {
		log.Fatalf("Failed to set up event bus: %v", err)
	}
	defer closePublisher()

	m := metrics.New()
	api, err := github.NewClient(clients.GitHub, cfg.GitHub.APIURL, cfg.GitHub.GraphQLURL)
	if err != nil {
		log.Fatalf("Failed to set up GitHub client: %v", err)
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.OptionsFromConfig(cfg), api, docs, newNotifier(cfg.Email, clients.API))
	orchestrator.SetJournal(sqliteStore)
	orchestrator.SetMetrics(m)
	if publisher != nil {
		orchestrator.SetEventPublisher(publisher)
	}

	// Handle one-shot commands
	if *syncNow {
		log.Println("Running sync...")
		outcome, err := orchestrator.Sync(ctx)
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		if outcome != nil {
			log.Printf("Sync complete! Run %d: %d received, %d created, %d failed", outcome.RunID,
				outcome.Report.TotalReceived, outcome.Report.TotalCreatedCount, outcome.Report.TotalFailedCount)
		}
		return
	}

	// Daemon mode
	sched := scheduler.New(cfg.Scheduler, orchestrator, sqliteStore)

	archiveWorker := workers.NewArchiveWorker(sqliteStore, newArchiveUploader(ctx, cfg.S3))
	archiveWorker.SetLogger(func(runID *int64, level models.LogLevel, message string) {
		sqliteStore.Log(runID, level, message)
	})
	sched.SetWorkers(archiveWorker)

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go archiveWorker.Run(ctx, 20, 10*time.Minute) // batch of 20 every 10 min
	log.Println("Archive worker started")

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = newMetricsServer(cfg.MetricsAddr, m, orchestrator)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
		log.Printf("Metrics listening on %s", cfg.MetricsAddr)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		done()
	}
	log.Println("Goodbye!")
}

func newNotifier(cfg config.EmailConfig, client *http.Client) pipeline.Notifier {
	if !cfg.Enabled {
		log.Println("Email notifications disabled, logging only")
		return notify.LogNotifier{}
	}
	return notify.NewSendGridNotifier(&cfg, client)
}

// newEventPublisher returns a nil publisher when publishing is off.
func newEventPublisher(cfg config.EventConfig, client *http.Client) (pipeline.EventPublisher, func(), error) {
	noop := func() {}
	if !cfg.Publish {
		return nil, noop, nil
	}

	switch cfg.Bus {
	case "eventgrid":
		p, err := notify.NewEventGridPublisher(cfg.EventGridEndpoint, cfg.EventGridKey, client)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	case "kafka":
		p := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, func() {
			if err := p.Close(); err != nil {
				log.Printf("Kafka close error: %v", err)
			}
		}, nil
	default:
		return nil, noop, fmt.Errorf("unknown event bus %q", cfg.Bus)
	}
}

func newArchiveUploader(ctx context.Context, cfg config.S3Config) workers.Uploader {
	if cfg.Bucket == "" {
		log.Println("No S3 bucket configured, run archives are discarded")
		return workers.NewNoOpUploader()
	}
	uploader, err := storage.NewS3Uploader(ctx, cfg)
	if err != nil {
		log.Printf("Warning: S3 unavailable, run archives are discarded: %v", err)
		return workers.NewNoOpUploader()
	}
	log.Printf("Archiving run reports to %s", uploader.ObjectURL("reports/"))
	return uploader
}

func newMetricsServer(addr string, m *metrics.Metrics, orchestrator *pipeline.Orchestrator) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status, err := orchestrator.MarshalStatus()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(status)
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	// Simple mask - find :// and mask until @
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	// Find : after user
	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
