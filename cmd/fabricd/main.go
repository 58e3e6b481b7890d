// Command fabricd runs a single node of the object fabric: it registers a
// broker connection, an event pipeline, a re-announcer, a TTL reaper, and a
// thin admin HTTP surface, then blocks until asked to shut down.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sapphire-kv/internal/adminapi"
	"sapphire-kv/internal/config"
	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/lifecycle"
	"sapphire-kv/internal/origin"
	"sapphire-kv/internal/pipeline"
	"sapphire-kv/internal/process"
	"sapphire-kv/internal/publisher"
	"sapphire-kv/internal/reannounce"
	"sapphire-kv/internal/subscriber"
	"sapphire-kv/internal/transport"
	"sapphire-kv/internal/transport/kafkabroker"
	"sapphire-kv/internal/transport/redisbroker"
	"sapphire-kv/internal/ttlreaper"
	"sapphire-kv/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	self := origin.New()
	bus := fabric.NewSignalBus()
	reg := fabric.NewRegistry(self, bus, cfg.ObjectTimeToLive)

	broker := newBroker(cfg)
	defer broker.Close()

	pub := publisher.New(reg, broker, wire.Channel, log.New(log.Writer(), "[publisher] ", log.LstdFlags))
	dispatcher := pipeline.NewDispatcher(reg, cfg.WorkerPoolSize, log.New(log.Writer(), "[pipeline] ", log.LstdFlags))
	sub := subscriber.New(reg, broker, wire.Channel, dispatcher, pub, log.New(log.Writer(), "[subscriber] ", log.LstdFlags))
	reannouncer := reannounce.New(reg, cfg.ObjectPublishRate)
	reaper := ttlreaper.New(reg, cfg.TTLScanInterval, int32(cfg.TTLScanInterval.Seconds()), log.New(log.Writer(), "[ttl] ", log.LstdFlags))

	processes := process.NewDirectory()

	adminSrv := adminapi.NewServer(adminapi.ServerConfig{
		Address:      cfg.APIServerPort,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, reg, cfg.AdminJWTSecret, cfg.AdminJWTIssuer, cfg.APIServerStaticRoot)

	ctrl := lifecycle.New(reg, processes, pub, log.New(log.Writer(), "[lifecycle] ", log.LstdFlags),
		pub, dispatcher, sub, reannouncer, reaper)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("lifecycle start failed: %v", err)
	}

	go func() {
		log.Printf("admin API listening on %s", cfg.APIServerPort)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("admin API server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	ctrl.Stop(shutdownCtx)
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin API shutdown error: %v", err)
	}
	ctrl.Join()
}

func newBroker(cfg config.Config) transport.Broker {
	if cfg.BrokerKind == "kafka" {
		return kafkabroker.New(cfg.KafkaBrokers, log.New(log.Writer(), "[kafkabroker] ", log.LstdFlags))
	}
	return redisbroker.New(cfg.BrokerHost, log.New(log.Writer(), "[redisbroker] ", log.LstdFlags))
}
