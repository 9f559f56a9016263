package main

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/browser"
	"webflowwizard/engine/internal/config"
	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/recorder"
	"webflowwizard/engine/pkg/logger"
)

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	mode := cfg.Server.Mode
	if verbose {
		mode = "debug"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

func browserOptions(cfg *config.Config) browser.Options {
	return browser.Options{
		ExecPath:  cfg.Chrome.ExecPath,
		Headless:  cfg.Chrome.HeadlessMode,
		Device:    cfg.Chrome.Device,
		Width:     int64(cfg.Chrome.Width),
		Height:    int64(cfg.Chrome.Height),
		UserAgent: cfg.Chrome.UserAgent,
	}
}

func executorOptions(cfg *config.Config) executor.Options {
	return executor.Options{
		Timeout:           cfg.Executor.Timeout,
		RetryCount:        cfg.Executor.RetryCount,
		BackoffBase:       cfg.Executor.BackoffBase,
		DelayBetweenSteps: cfg.Executor.DelayBetweenSteps,
		PollInterval:      cfg.Executor.PollInterval,
		SettleDelay:       cfg.Executor.SettleDelay,
		TypeDelay:         cfg.Executor.TypeDelay,
		ContinueOnError:   cfg.Executor.ContinueOnError,
		AllowCustomCode:   cfg.Executor.AllowCustomCode,
	}
}

func recorderOptions(cfg *config.Config) (recorder.Options, error) {
	opts := recorder.Options{DebounceWindow: cfg.Recorder.DebounceWindow}
	for _, pattern := range cfg.Recorder.VolatileClasses {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return opts, fmt.Errorf("RECORDER_VOLATILE_CLASSES: %w", err)
		}
		opts.VolatileClasses = append(opts.VolatileClasses, re)
	}
	return opts, nil
}

func newPool(cfg *config.Config, log *zap.Logger) *browser.Pool {
	return browser.NewPool(browserOptions(cfg), cfg.Chrome.Backend, cfg.Chrome.MaxInstances, log)
}
