package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"helix/config"
	"helix/exchange"
	"helix/infra/eventlog"
	"helix/infra/logging"
	"helix/infra/metrics"
	"helix/infra/outbox"
	"helix/jobs/broadcaster"
)

// Usage: exchange [port] [io_threads]
func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config error: %v", err)
	}
	if len(os.Args) > 1 {
		if port, err := strconv.Atoi(os.Args[1]); err == nil {
			cfg.Server.Port = port
		}
	}
	if len(os.Args) > 2 {
		if threads, err := strconv.Atoi(os.Args[2]); err == nil {
			cfg.Server.IOThreads = threads
		}
	}
	if cfg.Server.IOThreads > 0 {
		runtime.GOMAXPROCS(cfg.Server.IOThreads)
	}

	log := logging.New(cfg.Logging.Level)
	defer func() { _ = log.Sync() }()

	opts := exchange.Options{
		Port:           cfg.Server.Port,
		MaxConnections: cfg.Server.MaxConnections,
		MaxOrders:      cfg.Engine.MaxOrders,
		InboxCap:       cfg.Engine.InboxCap,
		OutboxCap:      cfg.Engine.OutboxCap,
		IdleBackoff:    cfg.Engine.IdleBackoff,
	}

	var evlog *eventlog.Logger
	if cfg.EventLog.Enabled {
		evlog, err = eventlog.New(cfg.EventLog.Dir, log)
		if err != nil {
			log.Fatal("event log init failed", zap.Error(err))
		}
		opts.EventLog = evlog
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ob *outbox.Outbox
	var obWriter *outbox.Writer
	var bc *broadcaster.Broadcaster
	if cfg.Kafka.Enabled {
		ob, err = outbox.Open(cfg.Kafka.OutboxDir)
		if err != nil {
			log.Fatal("outbox init failed", zap.Error(err))
		}
		obWriter = outbox.NewWriter(ob, log)
		opts.OutboxWriter = obWriter

		bc, err = broadcaster.New(ob, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Interval, log)
		if err != nil {
			log.Fatal("broadcaster init failed", zap.Error(err))
		}
		go bc.Run(ctx)
	}

	if cfg.Metrics.Enabled {
		go metrics.Serve(cfg.Metrics.Port, log)
	}

	ex, err := exchange.New(opts, log)
	if err != nil {
		log.Fatal("exchange init failed", zap.Error(err))
	}
	ex.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	ex.Stop()
	cancel()
	if bc != nil {
		_ = bc.Close()
	}
	if obWriter != nil {
		obWriter.Close()
	}
	if ob != nil {
		_ = ob.Close()
	}
	if evlog != nil {
		evlog.Close()
	}
}
