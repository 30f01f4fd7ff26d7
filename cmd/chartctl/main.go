// cmd/chartctl runs the chart pipeline offline against the SQLite archive
// and prints the resulting chart as JSON. It can also seed the archive from
// a JSON file of bars.
//
// Usage:
//
//	go run ./cmd/chartctl --ticker=AAPL --tf=1d --indicators=sma:20,rsi,macd --compare=MSFT
//	go run ./cmd/chartctl --ticker=AAPL --tf=1d --plan
//	go run ./cmd/chartctl --ticker=AAPL --tf=1d --import=bars.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"marketchart/config"
	"marketchart/internal/chart"
	"marketchart/internal/model"
	sqlitestore "marketchart/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/charts.db", "Path to SQLite database")
	ticker := flag.String("ticker", "", "Primary ticker")
	tfStr := flag.String("tf", "1d", "Timeframe: 1m,5m,15m,1h,1d")
	indicatorCfg := flag.String("indicators", "", "Indicator specs: TYPE[:PERIOD],... (default: from --defaults)")
	compare := flag.String("compare", "", "Comparison tickers, comma separated")
	limit := flag.Int("limit", 500, "Number of most recent bars to load")
	defaultsPath := flag.String("defaults", "config/chart_defaults.yaml", "Chart defaults file")
	planOnly := flag.Bool("plan", false, "Print the series operations instead of the chart")
	list := flag.Bool("list", false, "List archived tickers for --tf")
	importPath := flag.String("import", "", "Write bars from a JSON file into the archive for --ticker")
	flag.Parse()

	tf, err := model.ParseTimeframe(*tfStr)
	if err != nil {
		log.Fatalf("[chartctl] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if *importPath != "" {
		if err := importBars(*dbPath, *ticker, tf, *importPath); err != nil {
			log.Fatalf("[chartctl] import: %v", err)
		}
		return
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[chartctl] sqlite open failed: %v", err)
	}
	defer reader.Close()

	if *list {
		tickers, err := reader.Tickers(ctx, tf)
		if err != nil {
			log.Fatalf("[chartctl] %v", err)
		}
		for _, t := range tickers {
			fmt.Println(t)
		}
		return
	}

	if *ticker == "" {
		log.Fatal("[chartctl] --ticker is required")
	}

	defaults, err := config.LoadDefaults(*defaultsPath)
	if err != nil {
		log.Fatalf("[chartctl] %v", err)
	}
	indicators := defaults.Indicators
	if *indicatorCfg != "" {
		if indicators, err = parseIndicatorSpecs(*indicatorCfg); err != nil {
			log.Fatalf("[chartctl] %v", err)
		}
	}

	bars, err := reader.LatestBars(ctx, *ticker, tf, *limit)
	if err != nil {
		log.Fatalf("[chartctl] %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("[chartctl] no %s bars archived for %s", tf, *ticker)
	}
	from, to := bars[0].Time, bars[len(bars)-1].Time

	events, err := reader.FetchEvents(ctx, *ticker, from, to)
	if err != nil {
		log.Printf("[chartctl] WARNING: events unavailable: %v", err)
	}

	var comps []chart.Comparison
	for i, t := range splitList(*compare) {
		pts, err := reader.FetchPriceHistory(ctx, t, from, to, tf)
		if err != nil {
			log.Printf("[chartctl] WARNING: comparison %s: %v", t, err)
			continue
		}
		c := chart.Comparison{Ticker: t, Points: pts, Generation: 1}
		if n := len(defaults.ComparisonColors); n > 0 {
			c.Color = defaults.ComparisonColors[i%n]
		}
		comps = append(comps, c)
	}

	factory := &chart.RecorderFactory{}
	comp := chart.NewCompositor(factory.New, nil)
	plan, err := chart.BuildPlan(comp.View(), chart.Inputs{
		Ticker:         *ticker,
		Timeframe:      tf,
		Generation:     1,
		Prices:         bars,
		Indicators:     indicators,
		Comparisons:    comps,
		Events:         events,
		ReplaceMarkers: true,
	})
	if err != nil {
		log.Fatalf("[chartctl] %v", err)
	}

	if *planOnly {
		for _, op := range plan.Ops {
			fmt.Printf("%-6s %-16s %-11s points=%d visible=%v\n",
				op.Kind, op.Key, op.SeriesKind, op.Data.Len(), op.Visible)
		}
		fmt.Printf("markers=%d\n", len(plan.Markers))
		return
	}

	if err := comp.Apply(ctx, plan); err != nil {
		log.Fatalf("[chartctl] apply: %v", err)
	}
	out, err := comp.Export()
	if err != nil {
		log.Fatalf("[chartctl] %v", err)
	}
	os.Stdout.Write(out)
	fmt.Println()
}

func importBars(dbPath, ticker string, tf model.Timeframe, path string) error {
	if ticker == "" {
		return fmt.Errorf("--ticker is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var bars []model.PricePoint
	if err := json.Unmarshal(data, &bars); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.WriteBars(ticker, tf, bars); err != nil {
		return err
	}
	last, err := w.GetLastTimestamp(ticker, tf)
	if err != nil {
		return err
	}
	log.Printf("[chartctl] imported %d bars for %s/%s, last bar at %d", len(bars), ticker, tf, last)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseIndicatorSpecs parses "sma:20,rsi,bb:30".
func parseIndicatorSpecs(s string) ([]model.IndicatorConfig, error) {
	var configs []model.IndicatorConfig
	for _, part := range splitList(s) {
		tokens := strings.SplitN(part, ":", 2)
		typ, err := model.ParseIndicatorType(tokens[0])
		if err != nil {
			return nil, err
		}
		cfg := model.IndicatorConfig{Type: typ}
		if len(tokens) == 2 {
			period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
			if err != nil || period <= 0 {
				return nil, fmt.Errorf("bad period in %q", part)
			}
			cfg.Period = period
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
