package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glimte/amqppool"
	"github.com/glimte/amqppool/health"
	"github.com/glimte/amqppool/internal/rabbitmq"
	"github.com/glimte/amqppool/pool"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	url        string
	caCertPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "amqppool",
		Short: "Inspect and check pooled RabbitMQ connections",
		Long: `amqppool loads a connection pool configuration, opens connections the
way an application would, and reports whether the broker can be reached.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&opts.url, "url", "u", "", "RabbitMQ connection URL (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&opts.caCertPath, "ca-cert", "", "PEM certificate to trust (overrides the config file)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newCheckCmd(opts), newConfigCmd(opts))
	return rootCmd
}

// load reads the config file, if any, and applies flag overrides.
func (o *options) load() (amqppool.Config, error) {
	cfg := amqppool.DefaultConfig()
	if o.configPath != "" {
		data, err := os.ReadFile(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, err = amqppool.ParseConfig(data); err != nil {
			return cfg, err
		}
	}
	if o.url != "" {
		cfg.URL = o.url
	}
	if o.caCertPath != "" {
		cfg.CACertPath = o.caCertPath
	}
	return cfg, nil
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newCheckCmd(opts *options) *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Open a pooled connection and check the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cfg, err := opts.load()
			if err != nil {
				return err
			}

			logger := opts.logger(cmd.ErrOrStderr())
			p, err := cfg.CreatePool(
				[]amqppool.ManagerOption{amqppool.WithLogger(logger)},
				pool.WithLogger(logger),
				pool.WithTimeouts(pool.Timeouts{Wait: timeout, Create: timeout}),
			)
			if err != nil {
				return fmt.Errorf("failed to create pool: %w", err)
			}
			defer p.Close()

			registry := health.NewRegistry()
			registry.Register(health.NewPoolChecker("rabbitmq", p, logger))
			result := registry.Check(ctx)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printHealth(cmd.OutOrStdout(), result)
			}

			if result.Status == health.StatusUnhealthy {
				return fmt.Errorf("broker is %s", result.Status)
			}
			return nil
		},
	}
	checkCmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Overall check timeout")
	checkCmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return checkCmd
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.URL == "" {
				cfg.URL = rabbitmq.DefaultURL
			}
			cfg.URL = rabbitmq.SanitizeURL(cfg.URL)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func printHealth(w io.Writer, h health.OverallHealth) {
	fmt.Fprintf(w, "Overall: %s (%s)\n", h.Status, h.Duration.Round(time.Millisecond))

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := h.Checks[name]
		fmt.Fprintf(w, "\n%s: %s\n", name, check.Status)
		if check.Message != "" {
			fmt.Fprintf(w, "  Message: %s\n", check.Message)
		}
		if check.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", check.Error)
		}

		keys := make([]string, 0, len(check.Details))
		for k := range check.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, check.Details[k])
		}
	}
}
