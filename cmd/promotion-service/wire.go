// cmd/promotion-service/wire.go
package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"nexus-promotion/internal/pkg/bootstrap"
	"nexus-promotion/internal/pkg/redis"
	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/infrastructure"
	"nexus-promotion/internal/zookeeper"
)

// dependencies 是组装好的端口实现，以及关停时需要释放的资源
type dependencies struct {
	offers      domain.OfferRepository
	experiments domain.ExperimentRepository
	store       domain.AssignmentStore
	events      domain.EventLog
	closers     []func() error
}

func (d *dependencies) close(ctx context.Context) error {
	var first error
	// 后创建的先关闭
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func wire(cfg *bootstrap.Config) (*dependencies, error) {
	p := cfg.App.Promotion
	d := &dependencies{}

	var db *gorm.DB
	mysqlDB := func() (*gorm.DB, error) {
		if db != nil {
			return db, nil
		}
		var err error
		if db, err = infrastructure.OpenMySQL(cfg.Infra.MySQL); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { return infrastructure.CloseDB(db) })
		if cfg.Infra.MySQL.AutoMigrate {
			if err := infrastructure.Migrate(db); err != nil {
				return nil, err
			}
		}
		return db, nil
	}

	fail := func(err error) (*dependencies, error) {
		_ = d.close(context.Background())
		return nil, err
	}

	// a. 优惠和实验配置
	switch p.OfferSource {
	case "yaml", "":
		catalog, err := infrastructure.LoadCatalog(p.CatalogPath)
		if err != nil {
			return fail(err)
		}
		repo := infrastructure.NewMemoryCatalog(catalog)
		d.offers, d.experiments = repo, repo
		zlog.Info().Str("path", p.CatalogPath).Int("offers", len(catalog.Offers)).Msg("catalog loaded")
	case "mysql":
		db, err := mysqlDB()
		if err != nil {
			return fail(err)
		}
		d.offers = infrastructure.NewGormOfferRepository(db)
		d.experiments = infrastructure.NewGormExperimentRepository(db)
	default:
		return fail(errors.Errorf("unknown offer_source %q", p.OfferSource))
	}

	// b. 分配记录
	switch p.AssignmentStore {
	case "memory", "":
		d.store = infrastructure.NewMemoryAssignmentStore()
	case "redis":
		client, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, client.Close)
		store, err := infrastructure.NewRedisAssignmentStore(client, p.AssignmentTTL)
		if err != nil {
			return fail(err)
		}
		d.store = store
	case "mysql":
		db, err := mysqlDB()
		if err != nil {
			return fail(err)
		}
		d.store = infrastructure.NewGormAssignmentStore(db)
	default:
		return fail(errors.Errorf("unknown assignment_store %q", p.AssignmentStore))
	}
	if p.LockAssignments {
		conn, err := zookeeper.Connect(cfg.Infra.ZooKeeper.Servers, cfg.Infra.ZooKeeper.SessionTimeout)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, func() error { conn.Close(); return nil })
		d.store = infrastructure.NewLockedAssignmentStore(d.store, zookeeper.NewLockManager(conn))
	}

	// c. 曝光和转化
	switch p.EventSink {
	case "log", "":
		d.events = infrastructure.LogEventLog{}
	case "kafka":
		events := infrastructure.NewKafkaEventLog(strings.Split(cfg.Infra.Kafka.Brokers, ","), p.ExposureTopic, p.ConversionTopic)
		d.closers = append(d.closers, events.Close)
		d.events = events
	case "mysql":
		db, err := mysqlDB()
		if err != nil {
			return fail(err)
		}
		d.events = infrastructure.NewGormEventLog(db)
	default:
		return fail(errors.Errorf("unknown event_sink %q", p.EventSink))
	}

	zlog.Info().
		Str("offer_source", p.OfferSource).
		Str("assignment_store", p.AssignmentStore).
		Bool("lock_assignments", p.LockAssignments).
		Str("event_sink", p.EventSink).
		Msg("dependencies wired")
	return d, nil
}
