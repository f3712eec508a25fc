package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chipvault/internal/bank"
	"chipvault/internal/config"
	"chipvault/internal/event"
	"chipvault/internal/ingestion"
	"chipvault/internal/ledger"
	"chipvault/internal/observability"
	"chipvault/internal/persistence"
	"chipvault/internal/projection"
	"chipvault/internal/server"
	"chipvault/internal/vault"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chip-vault daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := observability.NewLoggerWithLevel("chipvaultd", level)
	logger.Info().Msg("chipvault starting")

	owner, err := ledger.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		return fmt.Errorf("owner_address: %w", err)
	}
	var initialServer ledger.Address
	if cfg.InitialServerAddress != "" {
		initialServer, err = ledger.ParseAddress(cfg.InitialServerAddress)
		if err != nil {
			return fmt.Errorf("initial_server_address: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Msg("migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot ---
	startSequence := int64(0)
	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load snapshot")
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		logger.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		logger.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// Persist channel blocks under pressure, projection channel drops.
	persistChan := make(chan vault.Output, cfg.PersistChanSize)
	projectionChan := make(chan vault.Output, cfg.ProjectionChanSize)
	persistWorkerChan := make(chan vault.Output, cfg.PersistChanSize)
	publishChan := make(chan ingestion.PublishableEvent, cfg.PublishChanSize)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Vault ---
	custody := bank.NewRecordingBank(db, observability.NewLoggerWithLevel("bank", level))
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	v, err := vault.New(vault.Config{
		Owner:               owner,
		InitialServer:       initialServer,
		PersistChan:         persistChan,
		ProjectionChan:      projectionChan,
		Bank:                custody,
		DBChecker:           dbChecker,
		Metrics:             metrics,
		Logger:              observability.NewLoggerWithLevel("vault", level),
		IdempotencyCapacity: cfg.IdempotencyCapacity,
	})
	if err != nil {
		return err
	}

	// --- Snapshot restore + replay ---
	if snap != nil {
		restoreVaultFromSnapshot(v, snap, logger)
	}

	replayStart := time.Now()
	replayCount, err := replayEventsFromLog(ctx, snapMgr, v, startSequence, logger)
	if err != nil {
		return fmt.Errorf("event replay: %w", err)
	}
	if replayCount > 0 {
		metrics.ReplayEventsTotal.Add(float64(replayCount))
		metrics.ReplayDuration.Set(time.Since(replayStart).Seconds())
		logger.Info().
			Int64("replayed", replayCount).
			Int64("sequence", v.GetSequence()).
			Dur("took", time.Since(replayStart)).
			Msg("event replay complete")
	}

	// Warm the LRU from the tail of the event log so recent duplicates
	// skip the cold-path DB lookup.
	if snap == nil {
		keys, err := dbChecker.LoadRecentKeys(ctx, cfg.IdempotencyCapacity)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to warm idempotency cache")
		} else if len(keys) > 0 {
			v.WarmLRU(keys)
			logger.Info().Int("keys", len(keys)).Msg("idempotency cache warmed")
		}
	}

	// Hash tip must match the stored snapshot when nothing was replayed
	if snap != nil && replayCount == 0 {
		var expected [32]byte
		copy(expected[:], snap.StateHash)
		if actual := v.GetStateHash(); actual != expected {
			return fmt.Errorf("state hash mismatch after restore: want %x, got %x", expected, actual)
		}
		logger.Info().Msg("state hash verified after snapshot restore")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()
	logger.Info().Str("url", cfg.NATSURL).Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		return fmt.Errorf("ensure nats streams: %w", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		return fmt.Errorf("ensure outbound stream: %w", err)
	}

	rawEventChan := make(chan ingestion.RawEvent, 4096)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)

	// --- HTTP API ---
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(v, db, healthChecker, metrics, observability.NewLoggerWithLevel("http", level)).Router(),
	}

	errChan := make(chan error, 8)

	// 1. Persistence worker
	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	// 2. Projection worker
	projWorker := projection.NewProjectionWorker(db, projectionChan)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	// 3. Outbound publisher
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	// 4. Persist fan-out: vault output → persistence worker + outbound publish
	go func() {
		teePersistOutputs(ctx, persistChan, persistWorkerChan, publishChan, metrics)
	}()

	// 5. NATS settlement ingestion
	go func() {
		runIngestionLoop(ctx, rawEventChan, v, metrics, logger)
	}()

	// 6. HTTP API server
	go func() {
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			httpServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 7. Periodic snapshots
	go func() {
		runPeriodicSnapshots(ctx, v, snapMgr, cfg.SnapshotInterval, metrics, logger)
	}()

	// 8. Channel utilization sampling
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("persist", len(persistWorkerChan), cap(persistWorkerChan))
				metrics.SetChannelMetrics("projection", len(projectionChan), cap(projectionChan))
				metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
				metrics.SetChannelMetrics("ingest", len(rawEventChan), cap(rawEventChan))
			}
		}
	}()

	// 9. Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Int64("sequence", v.GetSequence()).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("chipvault ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown: stop intake, flush workers, final snapshot ---
	cancel()
	natsSubscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistWorkerChan)
	close(publishChan)

	if err := takeSnapshot(shutdownCtx, v, snapMgr, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Msg("final snapshot saved")
	}

	logger.Info().Msg("chipvault shutdown complete")
	return nil
}

// teePersistOutputs forwards vault outputs to the persistence worker
// (blocking, lossless) and mirrors them to the outbound publisher
// (non-blocking, lossy).
func teePersistOutputs(
	ctx context.Context,
	in <-chan vault.Output,
	persistOut chan<- vault.Output,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case output, ok := <-in:
			if !ok {
				return
			}

			persistOut <- output

			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				Payload:        output.Envelope.Payload,
				StateHash:      output.Envelope.StateHash[:],
				Timestamp:      output.Envelope.Timestamp,
			}:
			default:
				if metrics != nil {
					metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

// runIngestionLoop parses raw settlement messages and dispatches them
// to the vault. Messages are acked once parsed: an unparseable message
// is acked and dropped so it cannot poison redelivery, and vault-level
// rejections (unauthorized server, insufficient balance) are final.
func runIngestionLoop(ctx context.Context, rawChan <-chan ingestion.RawEvent, v *vault.Vault, metrics *observability.Metrics, logger zerolog.Logger) {
	subjectToType := make(map[string]string)
	for _, sc := range ingestion.DefaultSubjects() {
		prefix := sc.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = sc.EventType
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			eventType := resolveEventType(raw.Subject, subjectToType)
			if eventType == "" {
				logger.Warn().Str("subject", raw.Subject).Msg("unknown nats subject")
				raw.AckFunc()
				continue
			}

			evt, err := ingestion.ParseRawEvent(raw, eventType)
			if err != nil {
				logger.Warn().Err(err).Str("subject", raw.Subject).Msg("parse settlement failed")
				raw.AckFunc()
				continue
			}
			raw.AckFunc()

			if err := v.Dispatch(ctx, evt); err != nil {
				logger.Warn().
					Err(err).
					Str("type", evt.EventType().String()).
					Str("key", evt.IdempotencyKey()).
					Msg("settlement rejected")
				continue
			}
			metrics.IngestToApply.WithLabelValues(eventType).Observe(time.Since(raw.Timestamp).Seconds())
		}
	}
}

// resolveEventType finds the event type for a NATS subject by longest
// prefix match.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// restoreVaultFromSnapshot converts stored snapshot data back into the
// vault's in-memory form.
func restoreVaultFromSnapshot(v *vault.Vault, snap *persistence.SnapshotData, logger zerolog.Logger) {
	state := &vault.SnapshotState{
		Sequence:        snap.Sequence,
		Owner:           ledger.Address(snap.Owner),
		Balances:        make(map[ledger.AccountKey]int64, len(snap.Balances)),
		IdempotencyKeys: snap.IdempotencyKeys,
	}
	copy(state.StateHash[:], snap.StateHash)

	for _, server := range snap.Authorized {
		state.Authorized = append(state.Authorized, ledger.Address(server))
	}

	for path, balance := range snap.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("skip unparseable snapshot account")
			continue
		}
		state.Balances[key] = balance
	}

	v.RestoreFromSnapshot(state)
	logger.Info().Int64("sequence", snap.Sequence).Msg("restored in-memory state from snapshot")
}

// replayEventsFromLog feeds persisted events back through the vault to
// rebuild state. Replay mode runs no collateral transfers and emits no
// outputs; duplicates against the warmed LRU are skipped silently.
func replayEventsFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	v *vault.Vault,
	fromSequence int64,
	logger zerolog.Logger,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64

	v.BeginReplay()
	defer v.EndReplay()

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			evt, err := event.DecodePayload(row.EventType, row.Payload)
			if err != nil {
				logger.Warn().
					Int64("sequence", row.Sequence).
					Str("type", row.EventType).
					Err(err).
					Msg("skip unparseable event during replay")
				continue
			}

			if err := v.Dispatch(ctx, evt); err != nil {
				logger.Debug().Int64("sequence", row.Sequence).Err(err).Msg("replay skip")
			}
			totalReplayed++
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// runPeriodicSnapshots takes a snapshot whenever the vault has advanced
// by the configured interval.
func runPeriodicSnapshots(
	ctx context.Context,
	v *vault.Vault,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := v.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := v.GetSequence()
			if currentSeq-lastSnapshotSeq >= interval {
				if err := takeSnapshot(ctx, v, snapMgr, metrics); err != nil {
					logger.Warn().Err(err).Msg("periodic snapshot failed")
				} else {
					lastSnapshotSeq = currentSeq
					logger.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
				}
			}
		}
	}
}

// takeSnapshot captures the vault's in-memory state and persists it.
func takeSnapshot(
	ctx context.Context,
	v *vault.Vault,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	state := v.CreateSnapshotState()
	snapData := &persistence.SnapshotData{
		Sequence:        state.Sequence,
		StateHash:       state.StateHash[:],
		Owner:           state.Owner.String(),
		Balances:        make(map[string]int64, len(state.Balances)),
		IdempotencyKeys: state.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}

	for _, server := range state.Authorized {
		snapData.Authorized = append(snapData.Authorized, server.String())
	}
	for key, balance := range state.Balances {
		snapData.Balances[key.AccountPath()] = balance
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Created from live state, so verified by construction
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}

	return nil
}
