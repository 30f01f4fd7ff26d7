package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketchart/internal/metrics"
	"marketchart/internal/model"
)

// ErrDataUnavailable is reported when the primary price history fails to
// load or comes back empty.
var ErrDataUnavailable = errors.New("chart: price data unavailable")

// DefaultFetchTimeout bounds every collaborator fetch.
const DefaultFetchTimeout = 15 * time.Second

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeRendered          NoticeKind = "rendered"
	NoticeDataUnavailable   NoticeKind = "data_unavailable"
	NoticeComparisonFailed  NoticeKind = "comparison_failed"
	NoticeEventsUnavailable NoticeKind = "events_unavailable"
	NoticeExportFailed      NoticeKind = "export_failed"
	NoticeStaleDiscarded    NoticeKind = "stale_discarded"
)

// Notice reports something the UI may want to show. Only data_unavailable
// and export_failed are errors from the user's point of view; the others
// are informational.
type Notice struct {
	Kind       NoticeKind      `json:"kind"`
	Ticker     string          `json:"ticker,omitempty"`
	Timeframe  model.Timeframe `json:"timeframe,omitempty"`
	Generation uint64          `json:"generation"`
	Message    string          `json:"message,omitempty"`
	Err        error           `json:"-"`
}

// SessionConfig tunes a Session. Zero values select defaults.
type SessionConfig struct {
	FetchTimeout time.Duration
	// Now is the clock used to compute fetch windows.
	Now func() time.Time
	// ComparisonColors are assigned to comparison tickers in order.
	ComparisonColors []string
}

// Session drives one chart: it fetches data for the current view, runs
// the recompute pipeline and applies the result to its Compositor. All
// chart state is owned by the goroutine running Run; the exported methods
// only send commands to it.
type Session struct {
	prices  model.PriceSource
	events  model.EventSource
	comp    *Compositor
	cfg     SessionConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	cmds    chan command
	results chan fetchResult
	notices chan Notice
	done    chan struct{}

	// loop state, only touched by Run
	ticker      string
	timeframe   model.Timeframe
	gen         uint64
	viewCtx     context.Context
	cancelView  context.CancelFunc
	bars        []model.PricePoint
	markers     []model.EventMarker
	markersDue  bool
	indicators  []model.IndicatorConfig
	compTickers []string
	compData    map[string]Comparison
	compPending map[string]bool
	compGen     uint64
}

// NewSession creates a session. events may be nil, in which case no
// markers are drawn. log and m may be nil.
func NewSession(prices model.PriceSource, events model.EventSource, comp *Compositor, cfg SessionConfig, log *slog.Logger, m *metrics.Metrics) *Session {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		prices:      prices,
		events:      events,
		comp:        comp,
		cfg:         cfg,
		log:         log,
		metrics:     m,
		cmds:        make(chan command),
		results:     make(chan fetchResult, 16),
		notices:     make(chan Notice, 64),
		done:        make(chan struct{}),
		compData:    make(map[string]Comparison),
		compPending: make(map[string]bool),
	}
}

// Notices returns the notice stream. Notices are dropped if nobody reads
// them.
func (s *Session) Notices() <-chan Notice { return s.notices }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

type commandKind int

const (
	cmdSetView commandKind = iota
	cmdSetIndicators
	cmdSetComparisons
	cmdExport
	cmdState
)

type command struct {
	kind        commandKind
	ticker      string
	timeframe   model.Timeframe
	indicators  []model.IndicatorConfig
	comparisons []string
	reply       chan reply
}

type reply struct {
	image []byte
	state State
	err   error
}

// State is a snapshot of the session's view and configuration.
type State struct {
	Ticker      string                  `json:"ticker"`
	Timeframe   model.Timeframe         `json:"timeframe"`
	Generation  uint64                  `json:"generation"`
	Bars        int                     `json:"bars"`
	Indicators  []model.IndicatorConfig `json:"indicators"`
	Comparisons []string                `json:"comparisons"`
	Series      []SeriesKey             `json:"series"`
}

// SetView switches ticker and timeframe. The current chart is torn down
// and fetches for the new view start immediately.
func (s *Session) SetView(ctx context.Context, ticker string, tf model.Timeframe) error {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	if _, err := model.ParseTimeframe(string(tf)); err != nil {
		return err
	}
	_, err := s.do(ctx, command{kind: cmdSetView, ticker: ticker, timeframe: tf})
	return err
}

// SetIndicators replaces the active indicator configs.
func (s *Session) SetIndicators(ctx context.Context, cfgs []model.IndicatorConfig) error {
	for i, c := range cfgs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("indicator %d: %w", i, err)
		}
	}
	cp := append([]model.IndicatorConfig(nil), cfgs...)
	_, err := s.do(ctx, command{kind: cmdSetIndicators, indicators: cp})
	return err
}

// SetComparisons replaces the comparison tickers.
func (s *Session) SetComparisons(ctx context.Context, tickers []string) error {
	seen := make(map[string]bool, len(tickers))
	var cleaned []string
	for _, t := range tickers {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		cleaned = append(cleaned, t)
	}
	_, err := s.do(ctx, command{kind: cmdSetComparisons, comparisons: cleaned})
	return err
}

// Export returns an image of the chart. A failure is also reported as a
// NoticeExportFailed and leaves the chart as it was.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	r, err := s.do(ctx, command{kind: cmdExport})
	return r.image, err
}

// State returns a snapshot of the session.
func (s *Session) State(ctx context.Context) (State, error) {
	r, err := s.do(ctx, command{kind: cmdState})
	return r.state, err
}

func (s *Session) do(ctx context.Context, cmd command) (reply, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-s.done:
		return reply{}, fmt.Errorf("chart session closed")
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-s.done:
		return reply{}, fmt.Errorf("chart session closed")
	}
}

// Run processes commands and fetch results until ctx is cancelled, then
// tears the chart down.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer func() {
		if s.cancelView != nil {
			s.cancelView()
		}
		if err := s.comp.Teardown(); err != nil {
			s.log.Warn("chart teardown failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.cmds:
			cmd.reply <- s.handle(ctx, cmd)
		case res := <-s.results:
			s.handleResult(ctx, res)
		}
	}
}

func (s *Session) handle(ctx context.Context, cmd command) reply {
	switch cmd.kind {
	case cmdSetView:
		s.switchView(ctx, cmd.ticker, cmd.timeframe)
	case cmdSetIndicators:
		s.indicators = cmd.indicators
		s.recompute(ctx)
	case cmdSetComparisons:
		s.setComparisons(cmd.comparisons)
		s.recompute(ctx)
	case cmdExport:
		img, err := s.comp.Export()
		if err != nil {
			s.notify(Notice{Kind: NoticeExportFailed, Message: err.Error(), Err: err})
		}
		return reply{image: img, err: err}
	case cmdState:
		return reply{state: s.state()}
	}
	return reply{}
}

func (s *Session) state() State {
	return State{
		Ticker:      s.ticker,
		Timeframe:   s.timeframe,
		Generation:  s.gen,
		Bars:        len(s.bars),
		Indicators:  append([]model.IndicatorConfig(nil), s.indicators...),
		Comparisons: append([]string(nil), s.compTickers...),
		Series:      s.comp.View().Keys(),
	}
}

// switchView bumps the generation, so every fetch still in flight for the
// old view is discarded when it lands, and drops all state tied to it.
func (s *Session) switchView(ctx context.Context, ticker string, tf model.Timeframe) {
	if s.cancelView != nil {
		s.cancelView()
	}
	if err := s.comp.Teardown(); err != nil {
		s.log.Warn("chart teardown failed", "ticker", s.ticker, "error", err)
	}

	s.gen++
	s.ticker = ticker
	s.timeframe = tf
	s.viewCtx, s.cancelView = context.WithCancel(ctx)
	s.bars = nil
	s.markers = nil
	s.markersDue = false
	s.compData = make(map[string]Comparison)
	s.compPending = make(map[string]bool)

	s.log.Info("chart view changed", "ticker", ticker, "timeframe", tf, "generation", s.gen)

	from, to := tf.Window(s.cfg.Now())
	gen := s.gen
	s.fetch(fetchPrices, ticker, func(ctx context.Context) fetchResult {
		bars, err := s.prices.FetchPriceHistory(ctx, ticker, from, to, tf)
		return fetchResult{bars: bars, err: err}
	}, gen)
	if s.events != nil {
		s.fetch(fetchEvents, ticker, func(ctx context.Context) fetchResult {
			evs, err := s.events.FetchEvents(ctx, ticker, from, to)
			return fetchResult{events: evs, err: err}
		}, gen)
	}
	for _, t := range s.activeComparisons() {
		s.fetchComparison(t)
	}
}

// activeComparisons is compTickers without the primary ticker, which is
// never overlaid on itself. The full list is kept so a ticker comes back as
// an overlay once the view moves off it.
func (s *Session) activeComparisons() []string {
	out := make([]string, 0, len(s.compTickers))
	for _, t := range s.compTickers {
		if t != s.ticker {
			out = append(out, t)
		}
	}
	return out
}

func (s *Session) setComparisons(tickers []string) {
	s.compTickers = tickers
	keep := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		keep[t] = true
	}
	for t := range s.compData {
		if !keep[t] {
			delete(s.compData, t)
		}
	}
	if s.ticker == "" {
		return
	}
	for _, t := range s.activeComparisons() {
		if _, loaded := s.compData[t]; !loaded && !s.compPending[t] {
			s.fetchComparison(t)
		}
	}
}

func (s *Session) fetchComparison(ticker string) {
	from, to := s.timeframe.Window(s.cfg.Now())
	tf := s.timeframe
	s.compPending[ticker] = true
	s.fetch(fetchComparison, ticker, func(ctx context.Context) fetchResult {
		bars, err := s.prices.FetchPriceHistory(ctx, ticker, from, to, tf)
		return fetchResult{bars: bars, err: err}
	}, s.gen)
}

func (s *Session) comparisonColor(ticker string) string {
	if len(s.cfg.ComparisonColors) == 0 {
		return ""
	}
	for i, t := range s.compTickers {
		if t == ticker {
			return s.cfg.ComparisonColors[i%len(s.cfg.ComparisonColors)]
		}
	}
	return ""
}

func (s *Session) handleResult(ctx context.Context, res fetchResult) {
	if res.gen != s.gen {
		s.log.Debug("discarding stale fetch", "kind", res.kind, "ticker", res.ticker,
			"generation", res.gen, "current", s.gen)
		if s.metrics != nil {
			s.metrics.StaleDiscarded.Inc()
		}
		s.notify(Notice{Kind: NoticeStaleDiscarded, Ticker: res.ticker, Generation: res.gen,
			Message: string(res.kind)})
		return
	}

	switch res.kind {
	case fetchPrices:
		if res.err == nil && len(res.bars) == 0 {
			res.err = errors.New("no bars in range")
		}
		if res.err != nil {
			err := fmt.Errorf("%w: %s: %w", ErrDataUnavailable, res.ticker, res.err)
			s.log.Warn("price history unavailable", "ticker", res.ticker, "timeframe", s.timeframe, "error", res.err)
			s.bars = nil
			s.notify(Notice{Kind: NoticeDataUnavailable, Ticker: res.ticker, Message: err.Error(), Err: err})
			return
		}
		s.bars = res.bars
		s.markersDue = true

	case fetchEvents:
		if res.err != nil {
			s.log.Warn("events unavailable", "ticker", res.ticker, "error", res.err)
			s.notify(Notice{Kind: NoticeEventsUnavailable, Ticker: res.ticker, Message: res.err.Error(), Err: res.err})
			s.markers = nil
		} else {
			s.markers = res.events
		}
		s.markersDue = true

	case fetchComparison:
		delete(s.compPending, res.ticker)
		if !s.wantsComparison(res.ticker) {
			return
		}
		if res.err == nil && len(res.bars) == 0 {
			res.err = errors.New("no bars in range")
		}
		if res.err != nil {
			s.log.Warn("comparison unavailable", "ticker", res.ticker, "error", res.err)
			delete(s.compData, res.ticker)
			s.notify(Notice{Kind: NoticeComparisonFailed, Ticker: res.ticker, Message: res.err.Error(), Err: res.err})
		} else {
			s.compGen++
			s.compData[res.ticker] = Comparison{
				Ticker:     res.ticker,
				Color:      s.comparisonColor(res.ticker),
				Points:     res.bars,
				Generation: s.compGen,
			}
		}
	}
	s.recompute(ctx)
}

func (s *Session) wantsComparison(ticker string) bool {
	for _, t := range s.activeComparisons() {
		if t == ticker {
			return true
		}
	}
	return false
}

// recompute builds a plan from the current state and applies it. Nothing
// is drawn until the primary price history has loaded.
func (s *Session) recompute(ctx context.Context) {
	if len(s.bars) == 0 {
		return
	}
	in := Inputs{
		Ticker:         s.ticker,
		Timeframe:      s.timeframe,
		Generation:     s.gen,
		Prices:         s.bars,
		Indicators:     s.indicators,
		Events:         s.markers,
		ReplaceMarkers: s.markersDue,
	}
	for _, t := range s.activeComparisons() {
		if c, ok := s.compData[t]; ok {
			in.Comparisons = append(in.Comparisons, c)
		}
	}

	plan, err := BuildPlan(s.comp.View(), in)
	if err != nil {
		s.log.Error("recompute failed", "ticker", s.ticker, "error", err)
		return
	}
	if plan.Empty() {
		return
	}
	if err := s.comp.Apply(ctx, plan); err != nil {
		s.log.Error("apply plan failed", "ticker", s.ticker, "error", err)
	}
	if plan.ReplaceMarkers {
		s.markersDue = false
	}
	s.notify(Notice{
		Kind:       NoticeRendered,
		Ticker:     s.ticker,
		Timeframe:  s.timeframe,
		Generation: s.gen,
		Message:    fmt.Sprintf("%d create, %d update, %d remove", plan.Count(OpCreate), plan.Count(OpUpdate), plan.Count(OpRemove)),
	})
}

func (s *Session) notify(n Notice) {
	if n.Ticker == "" {
		n.Ticker = s.ticker
	}
	if n.Timeframe == "" {
		n.Timeframe = s.timeframe
	}
	if n.Generation == 0 {
		n.Generation = s.gen
	}
	select {
	case s.notices <- n:
	default:
		s.log.Warn("notice dropped", "kind", n.Kind, "ticker", n.Ticker)
	}
}

type fetchKind string

const (
	fetchPrices     fetchKind = "prices"
	fetchEvents     fetchKind = "events"
	fetchComparison fetchKind = "comparison"
)

type fetchResult struct {
	kind   fetchKind
	ticker string
	gen    uint64
	bars   []model.PricePoint
	events []model.EventMarker
	err    error
}

// fetch runs fn off the loop under the view context and the fetch timeout
// and delivers its result tagged with gen.
func (s *Session) fetch(kind fetchKind, ticker string, fn func(ctx context.Context) fetchResult, gen uint64) {
	viewCtx := s.viewCtx
	timeout := s.cfg.FetchTimeout
	go func() {
		ctx, cancel := context.WithTimeout(viewCtx, timeout)
		defer cancel()

		start := time.Now()
		res := fn(ctx)
		if res.err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.err = ctx.Err()
		}
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			res.err = fmt.Errorf("%s fetch timed out after %s: %w", kind, timeout, res.err)
		}
		if s.metrics != nil {
			s.metrics.FetchDur.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
			if res.err != nil {
				s.metrics.FetchFailures.WithLabelValues(string(kind)).Inc()
			}
		}
		res.kind = kind
		res.ticker = ticker
		res.gen = gen

		select {
		case s.results <- res:
		case <-s.done:
		}
	}()
}
