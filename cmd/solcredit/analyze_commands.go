package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solcredit/service/config"
	"github.com/brojonat/solcredit/service/helius"
	"github.com/brojonat/solcredit/service/metrics"
	"github.com/brojonat/solcredit/service/narrative"
	natspkg "github.com/brojonat/solcredit/service/nats"
	"github.com/brojonat/solcredit/service/report"
	"github.com/brojonat/solcredit/service/scoring"
	"github.com/brojonat/solcredit/service/solana"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// reportRunner is the part of report.Pipeline the commands use.
type reportRunner interface {
	Run(ctx context.Context, address string) (*report.CreditReport, error)
}

// analyzer holds the dependencies shared by the analysis commands.
type analyzer struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	pipeline  reportRunner
	publisher natspkg.Publisher
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Produce a credit report for one wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Description: `Pages through the wallet's history until FETCH_LIMIT transfers of at least
MIN_TRANSACTION_AMOUNT were seen (at most FETCH_MAX_RAW transactions in total),
reads the current balances, keeps the MAX_TRANSACTIONS most recent transfers of at least
MIN_TRANSACTION_AMOUNT, scores them and prints the JSON report.

Example:
  solcredit analyze 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --jq '.score'`,
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the report before printing",
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			var query *report.Query
			if expr := c.String("jq"); expr != "" {
				var err error
				if query, err = report.CompileQuery(expr); err != nil {
					return err
				}
			}

			a, err := newAnalyzer(c)
			if err != nil {
				return err
			}
			defer a.close(c.String("metrics-file"))

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := a.analyze(ctx, address)
			if err != nil {
				return err
			}

			return emitReport(c.App.Writer, r, c.String("output"), query)
		},
	}
}

// commonFlags are shared by every command that runs the pipeline.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus metrics in text format to this file on exit",
		},
		&cli.BoolFlag{
			Name:  "publish",
			Usage: "Publish the report to NATS JetStream (requires NATS_URL)",
		},
		&cli.BoolFlag{
			Name:  "no-narrative",
			Usage: "Skip the language model narrative",
		},
	}
}

// newAnalyzer loads configuration and wires the pipeline.
func newAnalyzer(c *cli.Context) (*analyzer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	logger := setupLogger(cfg.LogLevel)
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	pipeline, err := buildPipeline(cfg, !c.Bool("no-narrative"), m, logger)
	if err != nil {
		return nil, err
	}

	a := &analyzer{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		pipeline: pipeline,
	}

	if c.Bool("publish") {
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("--publish requires NATS_URL")
		}
		publisher, err := natspkg.NewPublisher(c.Context, cfg.NATSURL, m, logger)
		if err != nil {
			return nil, err
		}
		a.publisher = publisher
	}

	return a, nil
}

// buildPipeline wires the Helius, Solana RPC and OpenAI clients into a report pipeline.
func buildPipeline(cfg *config.Config, withNarrative bool, m *metrics.Metrics, logger *slog.Logger) (*report.Pipeline, error) {
	heliusHTTP := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: metrics.InstrumentedTransport(m, "helius")(nil),
	}
	heliusClient := helius.NewClient(helius.Options{
		APIURL:     cfg.HeliusAPIURL,
		RPCURL:     cfg.HeliusRPCURL,
		APIKey:     cfg.HeliusAPIKey,
		RPS:        cfg.HeliusRPS,
		MaxRetries: cfg.HTTPMaxRetries,
	}, heliusHTTP, m, logger)

	filter := scoring.NewFilter(cfg.MinTransactionAmount, cfg.MaxTransactions)
	rpcClient := solana.NewRPCClient(cfg.SolanaRPCURL, &http.Client{Timeout: cfg.HTTPTimeout})
	chain := solana.NewClient(heliusClient, rpcClient, solana.FetchOptions{
		Qualifying: cfg.FetchLimit,
		MinAmount:  filter.MinAmount,
		MaxRaw:     cfg.FetchMaxRaw,
	}, m, logger)

	var narrator report.NarrativeGenerator
	if withNarrative {
		narrator = narrative.NewGenerator(narrative.Options{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, &http.Client{Timeout: cfg.HTTPTimeout}, m, logger)
	}

	return report.NewPipeline(chain, narrator, report.Options{
		Filter: filter,
		Weights: scoring.Weights{
			Activity:  cfg.WeightActivity,
			Diversity: cfg.WeightDiversity,
			Staking:   cfg.WeightStaking,
			Volume:    cfg.WeightVolume,
		},
		InsufficientDataPolicy: cfg.InsufficientDataPolicy,
	}, m, logger)
}

// analyze runs the pipeline and publishes the report when a publisher is set.
// A failed publish is logged; the report is still returned.
func (a *analyzer) analyze(ctx context.Context, address string) (*report.CreditReport, error) {
	start := time.Now()
	r, err := a.pipeline.Run(ctx, address)
	if err != nil {
		a.logger.ErrorContext(ctx, "analysis failed",
			"address", address,
			"error", err,
		)
		return nil, err
	}
	a.logger.InfoContext(ctx, "analysis complete",
		"address", address,
		"duration_seconds", time.Since(start).Seconds(),
	)

	if a.publisher != nil {
		if err := a.publisher.PublishReport(ctx, natspkg.FromReport(r)); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish report",
				"address", address,
				"error", err,
			)
		}
	}
	return r, nil
}

// close flushes metrics and releases the NATS connection.
func (a *analyzer) close(metricsFile string) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close publisher", "error", err)
		}
	}
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, a.registry); err != nil {
			a.logger.Error("failed to write metrics", "path", metricsFile, "error", err)
		}
	}
}

// writeQueryAndClose writes the query result to wc and reports a failed
// close when the write itself succeeded.
func writeQueryAndClose(wc io.WriteCloser, query *report.Query, r *report.CreditReport) error {
	if err := report.WriteQuery(wc, query, r); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

// emitReport writes r to outputPath when set, otherwise to w. A jq query
// replaces the report with the query's results.
func emitReport(w io.Writer, r *report.CreditReport, outputPath string, query *report.Query) error {
	if query != nil {
		if outputPath == "" {
			return report.WriteQuery(w, query, r)
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outputPath, err)
		}
		return writeQueryAndClose(f, query, r)
	}

	if outputPath != "" {
		if err := r.WriteFile(outputPath); err != nil {
			return err
		}
		fmt.Fprintf(w, "Report written to %s\n", outputPath)
		return nil
	}
	return r.Write(w)
}
