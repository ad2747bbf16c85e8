package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/observability"
	"github.com/ppiankov/clausewise/internal/server"
)

var (
	serveAddr  string
	serveFlags providerFlags
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes analysis over HTTP:
  POST   /v1/analyses                  analyze an upload (multipart "file") or JSON {"text": ...}
  GET    /v1/analyses                  list saved analyses
  GET    /v1/analyses/{id}             fetch a saved analysis
  GET    /v1/analyses/{id}/entities.csv
  DELETE /v1/analyses/{id}
  GET    /healthz, /metrics

Example:
  clausewise serve --addr :8080 --store clausewise.db`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&storePath, "store", "", "SQLite file to save results in")
	addProviderFlags(serveCmd, &serveFlags)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := *appConfig
	serveFlags.apply(&cfg)
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}

	collector := observability.NewCollector("clausewise")
	analyzer, err := newAnalyzer(&cfg, collector)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCollector(collector),
	}
	st, err := openStore(ctx, &cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		opts = append(opts, server.WithStore(st))
	} else {
		logger.Warn("no store configured; results are not kept (set store.path or --store)")
	}

	logger.Info("starting clausewise API",
		zap.String("addr", cfg.Server.Addr),
		zap.Strings("formats", analyzer.Formats()),
		zap.String("store", cfg.Store.Path))

	if err := server.New(analyzer, cfg.Server, opts...).ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
