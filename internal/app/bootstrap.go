package app

import (
	"errors"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/consumer"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/provider"
	"github.com/cookinbiz/affiliate-ledger/internal/router"
	"github.com/cookinbiz/affiliate-ledger/internal/worker"
)

// BuildRunner 按模式组装服务
func BuildRunner(cfg *config.Config, container *provider.Container, mode string) (*Runner, error) {
	if cfg == nil || container == nil {
		return nil, errors.New("config and container are required")
	}

	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	if mode == ModeAll || mode == ModeWorker {
		if cfg.Queue.Enabled {
			asynqConsumer := worker.NewConsumer(container.LedgerService, container.PayoutService)
			workerService, err := worker.NewService(&cfg.Queue, asynqConsumer)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Warnw("app_queue_disabled", "mode", mode)
		}

		services = append(services, worker.NewMaintenance(cfg.Affiliate, container.LedgerService, container.PayoutService))

		if cfg.Consumer.Enabled {
			billingConsumer, err := consumer.New(cfg.Consumer, container.LedgerService)
			if err != nil {
				return nil, err
			}
			services = append(services, billingConsumer)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}
	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}
	if models.DB == nil {
		return errors.New("database not initialized")
	}

	container, err := provider.NewContainer(opts.Config, models.DB)
	if err != nil {
		return err
	}
	defer container.Close()

	runner, err := BuildRunner(opts.Config, container, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
