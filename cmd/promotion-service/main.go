// cmd/promotion-service/main.go
package main

import (
	"context"
	"flag"

	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"nexus-promotion/internal/pkg/bootstrap"
	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/service/promotion/application"
	"nexus-promotion/internal/service/promotion/domain/conflict"
	"nexus-promotion/internal/service/promotion/infrastructure"
	"nexus-promotion/internal/service/promotion/interfaces"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	importCatalog := flag.Bool("import-catalog", false, "import the YAML catalog into MySQL and exit")
	flag.Parse()

	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(cfg.App.ServiceName, cfg.App.LogLevel)

	if *importCatalog {
		if err := runImport(cfg); err != nil {
			zlog.Fatal().Err(err).Msg("catalog import failed")
		}
		return
	}

	// 1. 按配置组装各个端口的适配器
	deps, err := wire(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to wire dependencies")
	}

	// 2. 初始化业务 Service，预算跟随配置中心热更新
	svc := application.NewPromotionService(
		deps.offers, deps.experiments, deps.store, deps.events,
		budgetFrom(cfg.App.Promotion.Budget),
		otel.Tracer(cfg.App.ServiceName),
		application.WithCartLimits(cfg.App.Promotion.MaxCartLines, cfg.App.Promotion.MaxLineQuantity),
	)
	bootstrap.OnConfigChange(func(c *bootstrap.Config) {
		svc.UpdateBudget(budgetFrom(c.App.Promotion.Budget))
		zlog.Info().Interface("budget", c.App.Promotion.Budget).Msg("default budget updated")
	})

	// 3. 启动 HTTP 服务
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.ServiceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewPromotionHandler(svc, cfg.App.Promotion.RequestTimeout).RegisterRoutes(appCtx.Mux)
		},
		Cleanup: deps.close,
	})
}

func budgetFrom(b bootstrap.BudgetConfig) conflict.BudgetOptions {
	return conflict.BudgetOptions{
		MaxOffers:          b.MaxOffers,
		MaxDiscountAmount:  b.MaxDiscountAmount,
		MaxDiscountPercent: b.MaxDiscountPercent,
		Mode:               conflict.BudgetMode(b.Mode),
	}
}

// runImport 把 YAML 目录写入 MySQL，用于初始化或发布新版本
func runImport(cfg *bootstrap.Config) error {
	catalog, err := infrastructure.LoadCatalog(cfg.App.Promotion.CatalogPath)
	if err != nil {
		return err
	}
	db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
	if err != nil {
		return err
	}
	defer infrastructure.CloseDB(db)
	if cfg.Infra.MySQL.AutoMigrate {
		if err := infrastructure.Migrate(db); err != nil {
			return err
		}
	}
	return infrastructure.ImportCatalog(context.Background(), db, catalog)
}
