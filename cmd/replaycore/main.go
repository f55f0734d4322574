// Copyright 2025 Certen Protocol
//
// replaycore is the host process for the deterministic observability and
// replay core: it loads configuration, opens the timeline store, wires the
// speculative scheduler and anomaly alert sink, and serves health and
// Prometheus metrics over HTTP. Chain ingestion (ChainSource) and proof
// confirmation (ProofPipeline) are supplied by the embedder; this binary
// does not connect to any chain transport itself.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/agentchain/replaycore/internal/alert"
	"github.com/agentchain/replaycore/internal/backfill"
	"github.com/agentchain/replaycore/internal/comparator"
	"github.com/agentchain/replaycore/internal/config"
	"github.com/agentchain/replaycore/internal/depgraph"
	"github.com/agentchain/replaycore/internal/ledger"
	"github.com/agentchain/replaycore/internal/metrics"
	"github.com/agentchain/replaycore/internal/projector"
	"github.com/agentchain/replaycore/internal/scheduler"
	"github.com/agentchain/replaycore/internal/timeline"
)

// dependencyTypesFromConfig turns the configured
// scheduler.speculatable_dependency_types names into the set
// SchedulerConfig expects, defaulting to Data+Order when unset.
func dependencyTypesFromConfig(names []string) map[depgraph.DependencyType]bool {
	if len(names) == 0 {
		return map[depgraph.DependencyType]bool{
			depgraph.DependencyData:  true,
			depgraph.DependencyOrder: true,
		}
	}
	types := make(map[depgraph.DependencyType]bool, len(names))
	for _, name := range names {
		types[depgraph.DependencyType(name)] = true
	}
	return types
}

// healthStatus tracks component health for the /health endpoint.
type healthStatus struct {
	mu sync.RWMutex

	Status        string `json:"status"` // "ok" | "degraded"
	Store         string `json:"store"`
	Alert         string `json:"alert"`
	Scheduler     string `json:"scheduler"`
	UptimeSeconds int64  `json:"uptimeSeconds"`

	startTime time.Time
}

func newHealthStatus() *healthStatus {
	return &healthStatus{
		Status:    "starting",
		Store:     "unknown",
		Alert:     "unknown",
		Scheduler: "unknown",
		startTime: time.Now(),
	}
}

func (h *healthStatus) set(field *string, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*field = value
	if h.Store == "connected" && h.Alert == "connected" && h.Scheduler == "active" {
		h.Status = "ok"
	} else {
		h.Status = "degraded"
	}
}

func (h *healthStatus) toJSON() []byte {
	h.mu.Lock()
	h.UptimeSeconds = int64(time.Since(h.startTime).Seconds())
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	data, _ := json.Marshal(h)
	return data
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML configuration file")
		showHelp   = flag.Bool("help", false, "show help message")
	)
	flag.Parse()

	if *showHelp {
		fmt.Println("replaycore, deterministic observability and replay core")
		fmt.Println("  -config path   path to YAML configuration (default config.yaml)")
		return
	}

	log.Printf("🚀 starting replaycore")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}

	health := newHealthStatus()

	// --- Timeline store -----------------------------------------------
	var store timeline.Store
	retention := timeline.Retention{}
	if cfg.Store.MaxEventsTotal > 0 {
		v := cfg.Store.MaxEventsTotal
		retention.MaxEventsTotal = &v
	}
	if cfg.Store.MaxEventsPerEntity > 0 {
		v := cfg.Store.MaxEventsPerEntity
		retention.MaxEventsPerEntity = &v
	}
	if cfg.Store.TTL > 0 {
		v := uint64(cfg.Store.TTL.AsDuration().Milliseconds())
		retention.TTLMs = &v
	}

	switch cfg.Store.Backend {
	case "goleveldb":
		log.Printf("🗄️ opening durable timeline store at %s", cfg.Store.DataDir)
		durable, err := timeline.OpenDurableStore("replaycore", cfg.Store.DataDir, retention)
		if err != nil {
			log.Fatalf("❌ failed to open durable timeline store: %v", err)
		}
		defer durable.Close()
		store = durable
	default:
		log.Printf("🗄️ using in-memory timeline store")
		store = timeline.NewMemoryStore(retention)
	}
	health.set(&health.Store, "connected")

	// --- Anomaly alert sink ---------------------------------------------
	var sink alert.Sink
	switch cfg.Alert.Sink {
	case "postgres":
		log.Printf("🔔 connecting to Postgres alert sink...")
		pg, err := alert.NewPostgresSink(cfg.Alert.DatabaseURL, alert.WithLogger(
			log.New(log.Writer(), "[AlertSink] ", log.LstdFlags),
		))
		if err != nil {
			log.Fatalf("❌ failed to connect to alert sink: %v", err)
		}
		defer pg.Close()
		sink = pg
	default:
		log.Printf("🔔 using log alert sink")
		sink = alert.NewLogSink(log.New(log.Writer(), "[Alert] ", log.LstdFlags))
	}
	health.set(&health.Alert, "connected")

	// --- Comparator -------------------------------------------------------
	cmp := comparator.New(func() uint64 { return uint64(time.Now().UnixMilli()) })
	_ = cmp // exposed to embedders via package API; the service itself only
	// runs comparisons when an embedder calls comparator.Compare directly.

	// --- Backfill and projector configuration -----------------------------
	// Built from the loaded config so an embedder pairing its own
	// ChainSource with backfill.New has every replay.* and backfill.* knob
	// already applied; this binary has no ChainSource of its own to run it
	// against.
	backfillCfg := backfill.Config{
		PageSize:       cfg.Backfill.PageSize,
		ToSlot:         cfg.Backfill.ToSlot,
		MaxRetries:     cfg.Backfill.MaxRetries,
		InitialBackoff: cfg.Backfill.InitialBackoff.AsDuration(),
		MaxBackoff:     cfg.Backfill.MaxBackoff.AsDuration(),
		Strict:         cfg.Backfill.Strict,
		TraceID:        cfg.Replay.TraceID,
		SampleRate:     cfg.Replay.Tracing.SampleRate,
	}
	_ = backfillCfg

	projCfg := projector.Config{
		Strict:     cfg.Backfill.Strict,
		TraceID:    cfg.Replay.TraceID,
		SampleRate: cfg.Replay.Tracing.SampleRate,
	}
	_ = projCfg

	// --- Dependency graph, commitment ledger, speculative scheduler -------
	graph := depgraph.New()
	commitments := ledger.New()

	schedCfg := scheduler.SchedulerConfig{
		MaxSpeculationDepth:         cfg.Scheduler.MaxSpeculationDepth,
		MaxSpeculativeStake:         cfg.Scheduler.MaxSpeculativeStake,
		EnableSpeculation:           cfg.Scheduler.EnableSpeculation,
		AllowPrivateSpeculation:     cfg.Scheduler.AllowPrivateSpeculation,
		MinReputationForSpeculation: cfg.Scheduler.MinReputationForSpeculation,
		ProofTimeoutMs:              uint32(cfg.Scheduler.ProofTimeout.AsDuration().Milliseconds()),
		MaxRollbackRatePercent:      cfg.Scheduler.MaxRollbackRatePercent,
		SpeculatableDependencyTypes: dependencyTypesFromConfig(cfg.Scheduler.SpeculatableDependencyTypes),
		RollbackWindowSize:          20,
		Logger:                      log.New(log.Writer(), "[Scheduler] ", log.LstdFlags),
	}
	sched := scheduler.New(graph, commitments, schedCfg)

	sched.On(scheduler.EventSpeculationFailed, func(taskPda, detail string) {
		log.Printf("⚠️ [Scheduler] speculation failed for %s: %s", taskPda, detail)
	})
	sched.On(scheduler.EventDepthLimitReached, func(taskPda, detail string) {
		log.Printf("⚠️ [Scheduler] depth limit reached for %s: %s", taskPda, detail)
	})
	sched.On(scheduler.EventStakeLimitReached, func(taskPda, detail string) {
		log.Printf("⚠️ [Scheduler] stake limit reached for %s: %s", taskPda, detail)
	})

	if cfg.Scheduler.EnableSpeculation {
		health.set(&health.Scheduler, "active")
	} else {
		health.set(&health.Scheduler, "disabled")
	}

	// Tick the scheduler's deferred rollback cascade on a steady interval
	// so OnProofFailed's queued rollbacks drain without embedder action.
	tickCtx, cancelTick := context.WithCancel(context.Background())
	var tickWG sync.WaitGroup
	tickWG.Add(1)
	go func() {
		defer tickWG.Done()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				if err := sched.Tick(); err != nil {
					log.Printf("⚠️ [Scheduler] tick error: %v", err)
				}
			}
		}
	}()

	// --- Metrics ------------------------------------------------------
	reg := metrics.New()

	// --- HTTP server ----------------------------------------------------
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "ok" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusOK) // degraded is still serving
		}
		w.Write(health.toJSON())
	})

	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.Metrics.Enabled {
		mux.Handle(metricsPath, reg.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		log.Printf("🌐 replaycore HTTP listening on %s (health=%s metrics=%s)",
			cfg.Metrics.Addr, "/health", metricsPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	log.Printf("✅ replaycore ready (store=%s alert=%s speculation=%v)",
		cfg.Store.Backend, cfg.Alert.Sink, cfg.Scheduler.EnableSpeculation)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("🛑 shutting down replaycore...")
	cancelTick()
	tickWG.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Printf("✅ replaycore stopped")
}
