package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gateway "github.com/adonese/plstats/apigateway"
	"github.com/adonese/plstats/embeddings"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var logrusLogger = logrus.New()

var (
	configPath  string
	secretsPath string
	listenAddr  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logrusLogger.WithError(err).Error("plstats failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "plstats",
		Short:         "Embeddings, similarities and noun statistics for Polish Wikipedia articles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: /app, ./ or ../config.yaml)")
	root.PersistentFlags().StringVar(&secretsPath, "secrets", "", "path to secrets.yaml (default: /app, ./ or ../secrets.yaml)")

	root.AddCommand(
		serveCmd(),
		createEmbeddingsCmd(),
		batchCmd("calculate-and-save-similarities", "Compute pairwise article similarities and save them to CSV",
			func(ctx context.Context, a *application) error {
				return a.similarity.SaveToCSV(ctx)
			}),
		batchCmd("calculate-and-save-frequencies", "Count noun lemmas with both NLP pipelines and save them to CSV",
			func(ctx context.Context, a *application) error {
				return a.nouns.CalculateAndSave(ctx)
			}),
	)
	return root
}

// withApplication loads the configuration and runs fn against a fully
// wired application, closing it afterwards.
func withApplication(cmd *cobra.Command, fn func(ctx context.Context, a *application, sampling gateway.LogSamplingConfig) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath, secretsPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Port = listenAddr
	}
	sampling := configureLogger(cfg)

	if shutdown := initOTel(ctx, cfg, logrusLogger); shutdown != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logrusLogger.WithError(err).Warn("otel shutdown failed")
			}
		}()
	}

	a, err := newApplication(ctx, cfg, logrusLogger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, sampling)
}

func createEmbeddingsCmd() *cobra.Command {
	var (
		types    []string
		recreate bool
	)
	cmd := batchCmd("create-embeddings-collections", "Fetch the corpus and store its embeddings for every provider",
		func(ctx context.Context, a *application) error {
			return createEmbeddings(ctx, a, types, recreate)
		})
	cmd.Flags().StringSliceVar(&types, "type", nil, "embedding types to build: openai, huggingface (default: all)")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "drop the selected collections before embedding")
	return cmd
}

func createEmbeddings(ctx context.Context, a *application, names []string, recreate bool) error {
	types, err := parseTypes(names)
	if err != nil {
		return err
	}
	if recreate {
		if err := a.embeddings.ResetCollections(ctx, types...); err != nil {
			return err
		}
	}
	return a.embeddings.CreateEmbeddings(ctx, types...)
}

func parseTypes(names []string) ([]embeddings.EmbeddingType, error) {
	var types []embeddings.EmbeddingType
	for _, name := range names {
		t, err := embeddings.ParseType(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func batchCmd(use, short string, run func(ctx context.Context, a *application) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd, func(ctx context.Context, a *application, _ gateway.LogSamplingConfig) error {
				return runBatch(ctx, cmd.OutOrStdout(), a, run)
			})
		},
	}
}

func runBatch(ctx context.Context, out io.Writer, a *application, run func(ctx context.Context, a *application) error) error {
	fmt.Fprintln(out, "Starting calculations...")
	start := time.Now()
	if err := run(ctx, a); err != nil {
		return err
	}
	a.invalidateStats(ctx)
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("batch finished")
	fmt.Fprintln(out, "Done!")
	return nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GET /urls/get-stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd, func(ctx context.Context, a *application, sampling gateway.LogSamplingConfig) error {
				return serve(ctx, a, sampling)
			})
		},
	}
	cmd.Flags().StringVar(&listenAddr, "addr", "", "listen address, overrides the configured port")
	return cmd
}

// serve listens until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, a *application, sampling gateway.LogSamplingConfig) error {
	app := GetMainEngine(a, sampling)
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", a.cfg.Port).Info("plstats listening")
		errCh <- app.Listen(a.cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
