package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/warp/accrual-engine/balanceapi"
	"github.com/warp/accrual-engine/config"
	"github.com/warp/accrual-engine/factory"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/lock"
	"github.com/warp/accrual-engine/logging"
	"github.com/warp/accrual-engine/store/sqlite"
	"github.com/warp/accrual-engine/worktime"
)

// components are the pieces every command runs the engine with.
type components struct {
	modules      []generic.AccrualModule
	calculator   *generic.Calculator
	recalculator *worktime.Recalculator
	closers      []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logging.Log.WithError(err).Warn("Close failed")
		}
	}
}

// buildModules turns the configured accrual types into modules.
func buildModules(cfg *config.Config) ([]generic.AccrualModule, error) {
	return factory.NewModuleFactory().Build(cfg.ModuleSpecs())
}

// buildEngine wires modules, calculator, locker and recalculator over store.
func buildEngine(ctx context.Context, cfg *config.Config, store generic.Store) (*components, error) {
	modules, err := buildModules(cfg)
	if err != nil {
		return nil, err
	}

	c := &components{modules: modules}
	c.calculator = &generic.Calculator{
		Agreements: store,
		Accruals:   store,
		Modules:    modules,
		Location:   cfg.Location(),
		Logger:     logging.For("calculator"),
	}

	locker, closeLocker, err := buildLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeLocker != nil {
		c.closers = append(c.closers, closeLocker)
	}

	c.recalculator = worktime.NewRecalculator(c.calculator, store, locker, logging.For("recalculator"))
	return c, nil
}

// buildLocker returns a Redis locker when enabled, otherwise an in-process one.
func buildLocker(ctx context.Context, cfg *config.Config) (worktime.Locker, func() error, error) {
	if !cfg.Redis.Enabled {
		logging.Log.Debug("Using in-process locking")
		return lock.NewLocalLocker(), nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}

	locker := lock.NewRedisLocker(rdb, "accrual-engine:lock:", logging.For("lock"))
	locker.TTL = cfg.Lock.TTL
	locker.Wait = cfg.Lock.Wait
	logging.Log.WithField("addr", cfg.Redis.Addr).Info("Redis connection established")
	return locker, rdb.Close, nil
}

// openStore returns the remote balance API when configured, otherwise SQLite.
func openStore(cfg *config.Config) (generic.Store, func() error, error) {
	if cfg.BalanceAPI.BaseURL != "" {
		logging.Log.WithField("base_url", cfg.BalanceAPI.BaseURL).Info("Using remote balance API")
		client := balanceapi.New(cfg.BalanceAPI.BaseURL, balanceapi.Options{
			RetryMax: cfg.BalanceAPI.RetryMax,
			Timeout:  cfg.BalanceAPI.Timeout,
			Logger:   logging.For("balanceapi"),
		})
		return client, func() error { return nil }, nil
	}

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, store.Close, nil
}
