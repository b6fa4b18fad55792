package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Astemirdum/bookhub/library/config"
	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/handler"
	"github.com/Astemirdum/bookhub/library/internal/repository"
	"github.com/Astemirdum/bookhub/library/internal/repository/memory"
	"github.com/Astemirdum/bookhub/library/internal/repository/mongostore"
	"github.com/Astemirdum/bookhub/library/internal/repository/pgstore"
	"github.com/Astemirdum/bookhub/library/internal/server"
	"github.com/Astemirdum/bookhub/library/internal/service"
	"github.com/Astemirdum/bookhub/library/migrations"
	"github.com/Astemirdum/bookhub/pkg/circuit_breaker"
	"github.com/Astemirdum/bookhub/pkg/kafka"
	"github.com/Astemirdum/bookhub/pkg/logger"
	"github.com/Astemirdum/bookhub/pkg/mongodb"
	"github.com/Astemirdum/bookhub/pkg/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "bookhub")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeStore, err := newRepository(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store init %v", err)
	}
	defer closeStore()

	opts := []service.Option{service.WithStrictReturn(cfg.Borrow.StrictReturn)}
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewSyncProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka.NewSyncProducer %v", err)
		}
		breaker := circuit_breaker.New(append(cfg.Kafka.Breaker.Options(),
			circuit_breaker.WithOnStateChange(func(from, to circuit_breaker.Status) {
				log.Warn("kafka publisher breaker",
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			}))...)
		publisher := kafka.NewPublisher(producer, kafka.BorrowTopic, breaker)
		defer publisher.Close()
		opts = append(opts, service.WithEvents(publisher))
	}
	svc := service.NewService(repo, log, opts...)

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter(cfg.CORS.AllowOrigins))

	g, gctx := errgroup.WithContext(ctx)
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)),
		zap.String("store", cfg.Store.Driver))
	g.Go(srv.Run)

	if cfg.Kafka.Enabled() {
		group, err := kafka.NewConsumer(cfg.Kafka, kafka.InventoryConsumerGroup)
		if err != nil {
			return fmt.Errorf("kafka.NewConsumer %v", err)
		}
		defer group.Close()
		consumer := handler.NewConsumer(svc.AdjustQuantity, log)
		g.Go(func() error {
			return kafka.Consume(gctx, group, consumer, kafka.InventoryTopic)
		})
		go func() {
			select {
			case <-consumer.Ready():
				log.Info("inventory consumer joined", zap.String("topic", kafka.InventoryTopic))
			case <-gctx.Done():
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	select {
	case termSig := <-sig:
		log.Debug("Graceful shutdown", zap.Any("signal", termSig))
	case <-gctx.Done():
		log.Error("component stopped, shutting down")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second*5)
	defer closeCancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Error("run", zap.Error(err))
		return err
	}
	log.Info("Graceful shutdown finished")
	return nil
}

func newRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, err := mongodb.NewClient(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		repo, err := mongostore.NewRepository(ctx, client, cfg.Mongo.Database, cfg.Mongo.Transactions, log)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Error("mongo disconnect", zap.Error(err))
			}
		}, nil
	case config.DriverPostgres:
		db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
		if err != nil {
			return nil, nil, err
		}
		repo, err := pgstore.NewRepository(db, log)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil
	case config.DriverMemory:
		return memory.NewRepository(log), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errs.ErrUnknownDriver, cfg.Store.Driver)
	}
}

// Migrate runs a goose command against the Postgres store.
func Migrate(cfg *config.Config, command string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := postgres.Connect(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("db connect %v", err)
	}
	defer db.Close()
	return postgres.Migrate(db, migrations.MigrationFiles, command)
}
