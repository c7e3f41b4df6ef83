package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"main/internal/broker"
	"main/internal/executor"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/pipeline"
	"main/internal/risk"
	"main/internal/strategy"
	"main/internal/vi"
	"main/pkg/conn"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("vimon: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "path to JSON config")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if loaded.Profile.Enabled {
		profiler, err := startProfiler(loaded.Profile)
		if err != nil {
			return errors.Wrap(err, "start profiler")
		}
		defer func() { _ = profiler.Stop() }()
	}

	metrics := obs.NewMetrics()
	book := ledger.New()
	quotes := strategy.NewQuoteBook(loaded.VolumeWindow)
	engine := strategy.NewEngine(loaded.Strategy, quotes)
	tracker := vi.NewTracker()
	riskEngine := risk.NewEngine(loaded.Risk)
	gateway := broker.NewRestClient(restConfig(loaded.Broker))

	var recorder pipeline.Recorder
	if loaded.Journal.Enabled {
		pg, err := conn.New(conn.Option{ConnString: loaded.Journal.DSN})
		if err != nil {
			return errors.Wrap(err, "connect journal database")
		}
		defer func() { _ = pg.Close() }()

		writer, err := journal.NewWriter(pg, 0)
		if err != nil {
			return errors.Wrap(err, "init journal")
		}
		writer.Run(ctx)
		defer writer.Wait()
		recorder = writer
	}

	var p *pipeline.Pipeline
	coordinator := executor.NewCoordinator(loaded.Executor, gateway, book, metrics,
		func(order executor.Order, result ledger.FillResult) {
			p.OnFill(order, result)
		},
		func(order executor.Order) {
			p.OnOrderTerminal(order)
		})
	p = pipeline.New(loaded.Pipeline, tracker, engine, quotes, riskEngine, book,
		coordinator, metrics, recorder)

	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()
	coordinator.Run(execCtx)
	p.Run(ctx)

	universe, err := resolveUniverse(ctx, loaded, gateway)
	if err != nil {
		return err
	}
	logs.Infof("vimon: universe holds %d instruments", len(universe))

	feedClient := feed.NewClient(ctx, loaded.Feed.URL, loaded.Feed.Token, metrics)
	if err := feedClient.Start(ctx); err != nil {
		return errors.Wrap(err, "start feed")
	}
	defer feedClient.Close()
	if err := feedClient.SubscribeVi(ctx); err != nil {
		return errors.Wrap(err, "subscribe vi stream")
	}

	handler := feed.NewAutoSubscriber(ctx, p, feedClient, universe, loaded.Pipeline.ReleaseCooldown)
	stopFeed := feedClient.Observe(ctx, handler)
	defer stopFeed()

	acks := broker.NewAckStream(ctx, loaded.Broker.AckURL, loaded.Broker.Token, metrics)
	if err := acks.Start(ctx); err != nil {
		return errors.Wrap(err, "start ack stream")
	}
	defer acks.Close()
	if err := acks.Subscribe(ctx); err != nil {
		return errors.Wrap(err, "subscribe ack stream")
	}
	stopAcks := acks.Observe(ctx, coordinator.OnBrokerAck)
	defer stopAcks()

	logs.Info("vimon: running")
	select {
	case <-sys.Shutdown():
	case <-ctx.Done():
	}

	logs.Info("vimon: shutting down")
	coordinator.Drain(cancelExec)
	stop()
	p.Wait()

	snapshot := book.Snapshot()
	logs.Infof("vimon: final positions=%d exposure=%d realized=%d",
		len(snapshot.Positions), snapshot.TotalExposure, snapshot.RealizedPnL)
	counters := metrics.Snapshot()
	logs.Infof("vimon: transitions=%d submitted=%d retries=%d anomalies=%d",
		counters.Transitions, counters.OrderSubmitted, counters.OrderRetries, counters.FeedAnomalies)
	return nil
}

// resolveUniverse merges the configured instruments with the broker's
// instrument master when auto discovery is on.
func resolveUniverse(ctx context.Context, loaded ops.Loaded, gateway *broker.RestClient) (map[model.Instrument]enum.Market, error) {
	universe := make(map[model.Instrument]enum.Market, len(loaded.Universe))
	for _, entry := range loaded.Universe {
		universe[entry.Instrument] = entry.Market
	}

	if loaded.AutoDiscover {
		stocks, err := gateway.ListInstruments(ctx, 0)
		if err != nil {
			return nil, errors.Wrap(err, "list instruments")
		}
		for _, stock := range stocks {
			if _, ok := universe[stock.Instrument]; !ok {
				universe[stock.Instrument] = stock.Market
			}
		}
	}
	return universe, nil
}

func restConfig(cfg ops.BrokerConfig) broker.RestConfig {
	return broker.RestConfig{
		URL:             cfg.URL,
		Token:           cfg.Token,
		AccountNo:       cfg.AccountNo,
		AccountPwd:      cfg.AccountPwd,
		Timeout:         millis(cfg.TimeoutMs),
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: seconds(cfg.BreakerCooldownSec),
	}
}

func millis(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

func seconds(v int64) time.Duration { return time.Duration(v) * time.Second }

func startProfiler(cfg ops.ProfileConfig) (*pyroscope.Profiler, error) {
	name := cfg.AppName
	if name == "" {
		name = "vimon"
	}
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.ServerAddress,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}
