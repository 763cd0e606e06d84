package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/spf13/viper"

	ahttp "github.com/blockpulse/chainwatch-rpc-service/internal/adapter/http"
	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/monitor"
	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/rpcpool"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/port"
	"github.com/blockpulse/chainwatch-rpc-service/internal/infra"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
)

func main() {
	if err := initConfig(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := applog.NewAppDefaultLogger()
	v := validator.New()
	wg := &sync.WaitGroup{}
	bus := event.NewBus(log)

	// Metric families bind to the current registerer on first touch, so the
	// served registry must be installed before any adapter is constructed.
	app := fiber.New()
	infra.InitMetrics(app)

	chains, err := infra.LoadChains()
	if err != nil {
		log.Fatal("invalid chain configuration", "err", err)
	}

	poller, err := infra.InitPoller(log, bus, chains, v)
	if err != nil {
		log.Fatal("failed to init adaptive poller", "err", err)
	}

	var pools []*rpcpool.Manager
	var monitors []*monitor.ChainMonitor
	for _, chain := range chains {
		pool, err := infra.InitPool(log, bus, wg, chain, v)
		if err != nil {
			log.Fatal("failed to init rpc pool", "chain", chain.Name, "err", err)
		}
		pool.StartSelfHealing()
		pools = append(pools, pool)

		mon, err := infra.InitMonitor(log, bus, wg, chain, pool, poller, v)
		if err != nil {
			log.Fatal("failed to init monitor", "chain", chain.Name, "err", err)
		}
		monitors = append(monitors, mon)
	}

	sinks := initSinks(log, bus, v)

	infra.InitRoutes(app, ahttp.Sources{Pools: pools, Monitors: monitors, Poller: poller})
	stopPprof := infra.StartPprof(log, wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := viper.GetString("http.addr")
		if addr == "" {
			addr = ":8080"
		}
		if err := app.Listen(addr); err != nil {
			log.Error("http server stopped", "err", err)
		}
	}()

	for _, mon := range monitors {
		if err := mon.Start(); err != nil {
			log.Fatal("failed to start monitor", "err", err)
		}
	}
	log.Info("chain monitors running", "chains", len(monitors))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	for _, mon := range monitors {
		mon.Stop()
	}
	for _, pool := range pools {
		pool.Stop()
	}
	for _, sink := range sinks {
		sink.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	_ = stopPprof(shutdownCtx)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out; exiting anyway")
	}
}

// initSinks wires the optional Kafka and Redis block event sinks onto the
// bus. Sink failures are logged, never propagated back into the monitors.
func initSinks(log applog.AppLogger, bus *event.Bus, v *validator.Validate) []port.BlockEventPublisher {
	var sinks []port.BlockEventPublisher

	if kafka, err := infra.InitBlockPublisher(log, v); err != nil {
		log.Fatal("failed to init kafka publisher", "err", err)
	} else if kafka != nil {
		sinks = append(sinks, kafka)
	}

	if stream, err := infra.InitBlockStream(log, v); err != nil {
		log.Fatal("failed to init redis stream", "err", err)
	} else if stream != nil {
		sinks = append(sinks, stream)
	}

	if len(sinks) > 0 {
		bus.OnNewBlock(func(ev entity.BlockEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, sink := range sinks {
				if err := sink.PublishBlockEvent(ctx, ev); err != nil {
					log.Error("failed to forward block event", "chain", ev.ChainID, "number", ev.Number, "err", err)
				}
			}
		})
	}
	return sinks
}

func initConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}
