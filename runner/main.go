// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command runner loads Lua fragments into a harness and drives its entry
// points, collecting crashers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bradleyjkemp/fuzz-harness/config"
	"github.com/bradleyjkemp/fuzz-harness/driver"
	"github.com/bradleyjkemp/fuzz-harness/harness"
	"github.com/bradleyjkemp/fuzz-harness/luahost"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "runner",
		Short:        "Drive a Lua fuzz harness",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, *cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Manifest, "manifest", cfg.Manifest, "TOML manifest mapping entry points to Lua fragments")
	cmd.Flags().IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "number of times to invoke every entry point after bootstrap")
	cmd.Flags().StringVar(&cfg.Workdir, "workdir", cfg.Workdir, "if set, save crashers under this directory")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-invocation timeout, 0 disables it")
	cmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "verbose logging")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	sources, err := config.LoadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	logger.Info("loaded manifest", zap.String("path", cfg.Manifest), zap.Int("fragments", len(sources)))

	host := luahost.New()
	h, err := host.Load(sources, harness.WithLogger(logger.Named("harness")))
	if h == nil {
		return err
	}
	d := driver.New(h,
		driver.WithLogger(logger.Named("driver")),
		driver.WithWorkdir(cfg.Workdir),
		driver.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		// Entries after the failing one were never bootstrapped; the driver
		// still reaches them.
		logger.Warn("bootstrap failed", zap.Error(err))
		var be *harness.BootstrapError
		if !errors.As(err, &be) {
			return err
		}
		if err := d.Note(be.Entry, be.Err); err != nil {
			return err
		}
	}
	switch err := d.Run(ctx, cfg.Rounds); {
	case errors.Is(err, driver.ErrHung):
		logger.Warn("harness hung, stopping", zap.Duration("timeout", cfg.Timeout))
	case err != nil && ctx.Err() == nil:
		return err
	}
	for _, e := range harness.Entries() {
		logger.Debug("run count", zap.Stringer("entry", e), zap.Int64("count", h.RunCount(e)))
	}
	if n := len(d.Crashers()); n > 0 {
		return fmt.Errorf("found %d crashers", n)
	}
	return nil
}
