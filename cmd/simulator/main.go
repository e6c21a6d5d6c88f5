package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"helix/config"
	"helix/infra/logging"
	"helix/sim"
)

// Usage: simulator [addr] [instances]
// Each instance runs its own connection and tick loop with RNG stream
// equal to its index, so runs are reproducible per instance.
func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config error: %v", err)
	}
	if len(os.Args) > 1 {
		cfg.Simulator.Address = os.Args[1]
	}
	if len(os.Args) > 2 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			cfg.Simulator.Instances = n
		}
	}

	log := logging.New(cfg.Logging.Level)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Simulator.Instances; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			instanceLog := log.With(zap.Int("instance", index))

			s, err := sim.New(sim.Options{
				Address:          cfg.Simulator.Address,
				TickPeriod:       cfg.Simulator.TickPeriod,
				LambdaInsertBase: cfg.Simulator.LambdaInsertBase,
				LambdaCancelBase: cfg.Simulator.LambdaCancelBase,
				BucketBounds:     cfg.Simulator.BucketBounds,
			}, sim.NewPCG(uint64(index), uint64(index)), instanceLog)
			if err != nil {
				instanceLog.Error("simulator init failed", zap.Error(err))
				return
			}
			if err := s.Run(ctx); err != nil {
				instanceLog.Error("simulator stopped", zap.Error(err))
			}
		}(i)
	}
	wg.Wait()
}
