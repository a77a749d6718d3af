// Package main provides the matrixgraph CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/matrixgraph/pkg/config"
	"github.com/orneryd/matrixgraph/pkg/execution"
	"github.com/orneryd/matrixgraph/pkg/logging"
	"github.com/orneryd/matrixgraph/pkg/persist"
	"github.com/orneryd/matrixgraph/pkg/storage"
	"github.com/orneryd/matrixgraph/pkg/telemetry"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	logCloser     io.Closer
	traceShutdown func(context.Context) error
}

func main() {
	rootCmd, a := newRootCmd()
	err := rootCmd.Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "matrixgraph",
		Short: "matrixgraph - sparse-matrix property graph engine",
		Long: `matrixgraph stores property graphs as sparse adjacency matrices and
evaluates traversals as matrix products.

Graphs are kept as snapshots in an embedded BadgerDB store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: searched in standard locations)")
	flags.String("data-dir", "", "Data directory")
	flags.StringP("graph", "g", "", "Graph name")
	flags.Bool("in-memory", false, "Use an in-memory store (nothing is persisted)")
	flags.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	flags.String("log-format", "", "Log format: text, json")
	flags.String("trace-exporter", "", "Trace exporter: none, stdout, otlp")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "matrixgraph v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	rootCmd.AddCommand(
		newImportCmd(a),
		newIndexCmd(a),
		newStatsCmd(a),
		newTraverseCmd(a),
		newListCmd(a),
		newDropCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newServeCmd(a),
	)
	return rootCmd, a
}

// setup loads configuration (defaults, file, env, then flags), validates it
// and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("data-dir") {
		cfg.Database.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("graph") {
		cfg.Database.Graph, _ = cmd.Flags().GetString("graph")
	}
	if cmd.Flags().Changed("in-memory") {
		cfg.Database.InMemory, _ = cmd.Flags().GetBool("in-memory")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
	}
	if cmd.Flags().Changed("trace-exporter") {
		cfg.Tracing.Exporter, _ = cmd.Flags().GetString("trace-exporter")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.cfg, a.logger, a.logCloser = cfg, logger, closer

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Tracing, telemetry.Options{ServiceVersion: version})
	if err != nil {
		return err
	}
	a.traceShutdown = shutdown
	a.logger.Debug("configuration loaded", "config", cfg.String(), "file", path)
	return nil
}

// close flushes pending spans and closes the log output. It runs after
// every command, including failed ones.
func (a *app) close() {
	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.traceShutdown(ctx); err != nil && a.logger != nil {
			a.logger.Warn("trace export shutdown", "error", err)
		}
		cancel()
		a.traceShutdown = nil
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

func (a *app) openStore() (*persist.Store, error) {
	s, err := persist.Open(persist.Options{
		Dir:                a.cfg.Database.DataDir,
		InMemory:           a.cfg.Database.InMemory,
		SyncWrites:         a.cfg.Database.SyncWrites,
		EncryptionPassword: a.cfg.Database.EncryptionPassword,
		EntitiesPerKey:     a.cfg.Database.EntitiesPerKey,
		Logger:             a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// loadGraph loads the configured graph. With create set, a graph that does
// not exist yet starts out empty.
func (a *app) loadGraph(ctx context.Context, s *persist.Store, create bool) (*storage.Graph, error) {
	g, err := s.Load(ctx, a.cfg.Database.Graph)
	if errors.Is(err, persist.ErrGraphNotFound) && create {
		a.logger.Info("creating graph", "graph", a.cfg.Database.Graph)
		return storage.NewGraph(a.cfg.Database.Graph), nil
	}
	return g, err
}

func (a *app) planOptions(extra ...execution.Option) []execution.Option {
	opts := []execution.Option{
		execution.WithLogger(a.logger),
		execution.WithRecordCap(a.cfg.Execution.RecordCap),
		execution.WithHTTPClient(&http.Client{Timeout: a.cfg.Execution.CSVFetchTimeout}),
	}
	return append(opts, extra...)
}
