// fetch_data downloads prices and the risk-free yield for the configured
// tickers and writes them as CSV snapshots that the csv source can replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"factorlab/config"
	"factorlab/logger"
	"factorlab/market/providers"
	"factorlab/pipeline"
)

func main() {
	configPath := flag.String("config", "", "configuration file (yaml)")
	source := flag.String("source", config.SourceOnline, "source to snapshot: online or synthetic")
	pricesPath := flag.String("prices", "", "prices csv output (default: source.prices_csv)")
	yieldsPath := flag.String("yields", "", "yields csv output (default: source.yields_csv)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *source == config.SourceCSV {
		log.Fatal("snapshotting the csv source onto itself is not supported")
	}
	cfg.Source.Kind = *source
	if *pricesPath == "" {
		*pricesPath = cfg.Source.PricesCSV
	}
	if *yieldsPath == "" {
		*yieldsPath = cfg.Source.YieldsCSV
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	src, err := pipeline.NewSource(*cfg, zl)
	if err != nil {
		log.Fatalf("failed to build source: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req := providers.SnapshotRequest{
		Symbols:  cfg.Tickers,
		SeriesID: cfg.RiskFree.SeriesID,
		Start:    cfg.Start.Time,
		End:      cfg.End.Time,
	}
	nPrices, nYields, err := src.SaveSnapshot(ctx, req, *pricesPath, *yieldsPath)
	if err != nil {
		log.Fatalf("snapshot failed: %v", err)
	}

	fmt.Printf("wrote %d prices to %s and %d yields to %s\n", nPrices, *pricesPath, nYields, *yieldsPath)
}
