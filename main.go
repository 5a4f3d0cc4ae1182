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

	"factorlab/config"
	"factorlab/db"
	"factorlab/logger"
	"factorlab/market/providers"
	"factorlab/pipeline"
	"factorlab/report"
)

var (
	configPath   string
	workbookPath string
	dbPath       string
	sourceKind   string
	saveSnapshot bool
)

var rootCmd = &cobra.Command{
	Use:   "factorlab",
	Short: "Exploratory factor analysis of monthly stock returns",
	Long: `Fetches monthly prices and the 3-month Treasury yield, tests whether the
excess returns are factorable, extracts rotated factors and attributes the
equal-weight portfolio to them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAnalysis,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis (default)",
	RunE:  runAnalysis,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Print eigenvalue and factorability diagnostics without extracting",
	RunE:  runDiagnose,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (yaml)")
	rootCmd.PersistentFlags().StringVar(&sourceKind, "source", "", "data source: online, csv or synthetic (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite run log path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&workbookPath, "workbook", "", "write loadings workbook to this xlsx path (overrides config)")

	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		cmd.Flags().BoolVar(&saveSnapshot, "snapshot", false,
			"after the run, save the fetched inputs to source.prices_csv / source.yields_csv for offline replay")
	}

	rootCmd.AddCommand(runCmd, diagnoseCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	cfg *config.Config
	// root is handed to components, log carries component=cli.
	root  *zap.Logger
	log   *zap.Logger
	store *db.Store
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if sourceKind != "" {
		cfg.Source.Kind = sourceKind
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if workbookPath != "" {
		cfg.Report.Workbook = workbookPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, root: log, log: logger.Named(log, "cli")}
	if cfg.Storage.Path != "" {
		store, err := db.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.log.Info("run log opened", zap.String("path", cfg.Storage.Path))
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	_ = a.root.Sync()
}

func (a *app) pipeline() (*pipeline.Pipeline, *providers.ProviderManager, error) {
	src, err := pipeline.NewSource(*a.cfg, a.root)
	if err != nil {
		return nil, nil, err
	}
	opts := []pipeline.Option{pipeline.WithLogger(a.root)}
	if a.store != nil {
		opts = append(opts, pipeline.WithRecorder(a.store))
	}
	p, err := pipeline.New(*a.cfg, src, opts...)
	return p, src, err
}

// snapshot writes the inputs of the run that just finished. Every series is
// already in the manager's memo, so nothing is fetched twice.
func (a *app) snapshot(ctx context.Context, src *providers.ProviderManager) error {
	if a.cfg.Source.Kind == config.SourceCSV {
		a.log.Info("snapshot skipped: inputs already come from csv")
		return nil
	}
	req := providers.SnapshotRequest{
		Symbols:  a.cfg.Tickers,
		SeriesID: a.cfg.RiskFree.SeriesID,
		Start:    a.cfg.Start.Time,
		End:      a.cfg.End.Time,
	}
	nPrices, nYields, err := src.SaveSnapshot(ctx, req, a.cfg.Source.PricesCSV, a.cfg.Source.YieldsCSV)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	a.log.Info("snapshot saved",
		zap.String("prices", a.cfg.Source.PricesCSV), zap.Int("price_points", nPrices),
		zap.String("yields", a.cfg.Source.YieldsCSV), zap.Int("yield_points", nYields))
	return nil
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	p, src, err := a.pipeline()
	if err != nil {
		return err
	}
	res, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if saveSnapshot {
		if err := a.snapshot(cmd.Context(), src); err != nil {
			return err
		}
	}

	if a.cfg.Report.Workbook == "" {
		return nil
	}
	err = report.WriteWorkbook(a.cfg.Report.Workbook, res)
	switch {
	case errors.Is(err, report.ErrNoLoadings):
		a.log.Info("workbook skipped: no factors extracted")
		return nil
	case err != nil:
		return fmt.Errorf("write workbook: %w", err)
	}
	a.log.Info("workbook written", zap.String("path", a.cfg.Report.Workbook))
	return nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	p, _, err := a.pipeline()
	if err != nil {
		return err
	}
	res, err := p.Diagnose(cmd.Context())
	if err != nil {
		return err
	}
	return report.Write(cmd.OutOrStdout(), res)
}
