package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rlaau/swapsentry/internal/alerts"
	"github.com/rlaau/swapsentry/internal/backpressure"
	"github.com/rlaau/swapsentry/internal/cluster"
	"github.com/rlaau/swapsentry/internal/counters"
	"github.com/rlaau/swapsentry/internal/dedup"
	"github.com/rlaau/swapsentry/internal/deltalog"
	"github.com/rlaau/swapsentry/internal/ingest"
	"github.com/rlaau/swapsentry/internal/orchestrator"
	"github.com/rlaau/swapsentry/internal/sink"
	"github.com/rlaau/swapsentry/internal/state"
	"github.com/rlaau/swapsentry/internal/swap"
	"github.com/rlaau/swapsentry/internal/triggers"
	"github.com/rlaau/swapsentry/internal/txsource"
	"github.com/rlaau/swapsentry/shared/config"
	"github.com/rlaau/swapsentry/shared/kafka"
	"github.com/rlaau/swapsentry/shared/metrics"
	"github.com/rlaau/swapsentry/shared/mode"
)

func main() {
	ingestOnly := flag.Bool("ingest-only", false, "run only the upstream-to-stream relay")
	consumeOnly := flag.Bool("consume-only", false, "run stream consumers and counters/state/delta-log, no ingest relay")
	detectOnly := flag.Bool("detect-only", false, "run only the trigger tick and alert dispatcher")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	if err := kafka.WaitForKafka(cfg.KafkaBrokers, 30*time.Second, log); err != nil {
		log.Fatal("kafka not ready", zap.Error(err))
	}
	if err := ingest.EnsureTopic(cfg.KafkaBrokers, kafka.RawTxTopic, 6, 1, log); err != nil {
		log.Fatal("ensure stream topic failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	stream := ingest.New(cfg.KafkaBrokers, kafka.RawTxTopic, 0, log)
	defer stream.Close()

	dedupFilter := dedup.New(rdb, 10*time.Minute)
	inferencer := swap.New(cfg.ConfidenceFloor)
	counterStore := counters.New(rdb)

	evaluator := triggers.NewEvaluator(cfg.AlertCooldown)
	if err := evaluator.LoadFile(cfg.RulesPath); err != nil {
		log.Fatal("load trigger rules failed", zap.Error(err))
	}
	evaluator.WatchReload(context.Background(), rdb, cfg.RulesPath, log)

	stateMgr, err := state.Open(cfg.BadgerDir, cfg.HotTTL, cfg.WarmToColdAfter, cfg.AlertCooldown)
	if err != nil {
		log.Fatal("open state manager failed", zap.Error(err))
	}
	defer stateMgr.Close()

	deltaLog, err := deltalog.Open(cfg.DeltaLogDir, cfg.DeltaLogIndexDir)
	if err != nil {
		log.Fatal("open delta log failed", zap.Error(err))
	}
	defer deltaLog.Close()

	unionFind, err := cluster.Open(cfg.ClusterBadgerDir)
	if err != nil {
		log.Fatal("open cluster store failed", zap.Error(err))
	}
	defer unionFind.Close()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	scorer := cluster.NewScorer(rootCtx, cfg.ScorerWorkers)
	defer scorer.Shutdown()

	publisher := mode.NewPublisher()
	bpController := backpressure.New(backpressure.Thresholds{
		LagWarn:    cfg.BackpressureLagWarn,
		LagCrit:    cfg.BackpressureLagCrit,
		BufferWarn: cfg.BackpressureBufferWarn,
		BufferCrit: cfg.BackpressureBufferCrit,
	}, publisher, log)

	dispatcher, err := buildDispatcher(cfg, log)
	if err != nil {
		log.Fatal("build alert dispatcher failed", zap.Error(err))
	}

	upstream := txsource.New(cfg.UpstreamGRPCAddr, cfg.UpstreamToken, log)
	sinkClient := sink.New(cfg.SinkBaseURL)

	orch := orchestrator.New(orchestrator.Deps{
		Stream:               stream,
		Dedup:                dedupFilter,
		Inferencer:           inferencer,
		Counters:             counterStore,
		Evaluator:            evaluator,
		State:                stateMgr,
		DeltaLog:             deltaLog,
		Backpressure:         bpController,
		Clusters:             unionFind,
		Scorer:               scorer,
		Dispatcher:           dispatcher,
		Upstream:             upstream,
		Sink:                 sinkClient,
		Publisher:            publisher,
		Log:                  log,
		ConsumerCount:        cfg.ConsumerCount,
		ConsumerNameOverride: cfg.ConsumerNameOverride,
		DeltaLogRetention:    cfg.DeltaLogRetention,
	})

	role := orchestrator.RoleAll
	switch {
	case *ingestOnly:
		role = orchestrator.RoleIngestOnly
	case *consumeOnly:
		role = orchestrator.RoleConsumeOnly
	case *detectOnly:
		role = orchestrator.RoleDetectOnly
	}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: metrics.NewServer()}
	go func() {
		log.Info("metrics/health server starting", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	runErrCh := make(chan error, 1)
	go func() {
		log.Info("orchestrator starting", zap.String("role", roleName(role)))
		runErrCh <- orch.Run(rootCtx, role)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutdown signal received, draining")
	case err := <-runErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("orchestrator exited with error", zap.Error(err))
		}
	}

	cancelRoot()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown did not complete cleanly", zap.Error(err))
	}

	select {
	case <-runErrCh:
	case <-shutdownCtx.Done():
		log.Warn("orchestrator did not drain within the shutdown deadline")
	}

	log.Info("shutdown complete")
}

func buildDispatcher(cfg config.Config, log *zap.Logger) (*alerts.Dispatcher, error) {
	var channels []*alerts.Channel
	if cfg.DiscordWebhookURL != "" {
		ch, err := alerts.NewChannel("discord", cfg.DiscordWebhookURL, cfg.AlertRatePerSec, cfg.AlertBurst,
			cfg.AlertQueueDir+"/discord.jsonl", cfg.AlertQueueCap, log)
		if err != nil {
			return nil, fmt.Errorf("discord channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		ch, err := alerts.NewTelegramChannel(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.AlertRatePerSec, cfg.AlertBurst,
			cfg.AlertQueueDir+"/telegram.jsonl", cfg.AlertQueueCap, log)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return alerts.NewDispatcher(channels...), nil
}

func roleName(r orchestrator.Role) string {
	switch r {
	case orchestrator.RoleIngestOnly:
		return "ingest-only"
	case orchestrator.RoleConsumeOnly:
		return "consume-only"
	case orchestrator.RoleDetectOnly:
		return "detect-only"
	default:
		return "all"
	}
}
