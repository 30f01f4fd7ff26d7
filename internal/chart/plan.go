package chart

import (
	"fmt"

	"marketchart/internal/indicator"
	"marketchart/internal/model"
	"marketchart/internal/series"
)

// Comparison is the loaded history of one comparison ticker. Generation
// changes whenever Points is reloaded.
type Comparison struct {
	Ticker     string
	Color      string
	Points     []model.PricePoint
	Generation uint64
}

// Inputs is everything a recompute pass depends on.
type Inputs struct {
	Ticker    string
	Timeframe model.Timeframe
	// Generation identifies the price sequence. Entries computed from the
	// same generation are reused instead of recomputed.
	Generation  uint64
	Prices      []model.PricePoint
	Indicators  []model.IndicatorConfig
	Comparisons []Comparison
	Events      []model.EventMarker
	// ReplaceMarkers is set on a primary load; markers are otherwise left
	// as they are.
	ReplaceMarkers bool
}

// OpKind is the operation applied to one series.
type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpUpdate
	OpRemove
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	}
	return "unknown"
}

// Op is one series operation of a Plan.
type Op struct {
	Kind       OpKind
	Key        SeriesKey
	SeriesKind SeriesKind
	Style      StyleHints
	Data       SeriesData
	Visible    bool
	Generation uint64
	// Reused is set when Data was taken from the registry rather than
	// recomputed.
	Reused bool
}

// Plan is the result of a recompute pass. Ops are ordered removes, then
// creates, then updates.
type Plan struct {
	Ticker         string
	Timeframe      model.Timeframe
	Ops            []Op
	Markers        []model.EventMarker
	ReplaceMarkers bool
}

// Empty reports whether applying the plan would touch the surface.
func (p Plan) Empty() bool { return len(p.Ops) == 0 && !p.ReplaceMarkers }

// Count returns the number of ops of kind k.
func (p Plan) Count(k OpKind) int {
	n := 0
	for _, op := range p.Ops {
		if op.Kind == k {
			n++
		}
	}
	return n
}

// desired is one series the inputs ask for.
type desired struct {
	key     SeriesKey
	kind    SeriesKind
	style   StyleHints
	visible bool
	gen     uint64
	// compute is called only when the registry cannot supply the data.
	compute func() (SeriesData, error)
}

// BuildPlan diffs the series the inputs ask for against the registry.
//
// Series in the registry but not in the inputs are removed. Series in the
// inputs but not registered are created, unless their data is empty
// (insufficient history). Registered series are updated in place when their
// data generation or visibility changed, and left alone otherwise. Hidden
// series stay registered with their data computed.
func BuildPlan(view RegistryView, in Inputs) (Plan, error) {
	plan := Plan{
		Ticker:         in.Ticker,
		Timeframe:      in.Timeframe,
		ReplaceMarkers: in.ReplaceMarkers && len(in.Prices) > 0,
	}
	if plan.ReplaceMarkers {
		plan.Markers = in.Events
	}

	want, err := desiredSeries(in)
	if err != nil {
		return Plan{}, err
	}

	wanted := make(map[SeriesKey]bool, len(want))
	for _, d := range want {
		wanted[d.key] = true
	}
	var removes, creates, updates []Op
	for _, k := range view.Keys() {
		if !wanted[k] {
			removes = append(removes, Op{Kind: OpRemove, Key: k})
		}
	}

	for _, d := range want {
		existing, registered := view.Lookup(d.key)
		if registered && existing.Generation == d.gen {
			if existing.Visible == d.visible {
				continue
			}
			updates = append(updates, Op{
				Kind:       OpUpdate,
				Key:        d.key,
				SeriesKind: d.kind,
				Style:      d.style,
				Data:       existing.Data,
				Visible:    d.visible,
				Generation: d.gen,
				Reused:     true,
			})
			continue
		}

		data, err := d.compute()
		if err != nil {
			return Plan{}, fmt.Errorf("%s: %w", d.key, err)
		}
		if !registered {
			if data.Empty() {
				continue
			}
			creates = append(creates, Op{
				Kind:       OpCreate,
				Key:        d.key,
				SeriesKind: d.kind,
				Style:      d.style,
				Data:       data,
				Visible:    d.visible,
				Generation: d.gen,
			})
			continue
		}
		updates = append(updates, Op{
			Kind:       OpUpdate,
			Key:        d.key,
			SeriesKind: d.kind,
			Style:      d.style,
			Data:       data,
			Visible:    d.visible,
			Generation: d.gen,
		})
	}

	plan.Ops = make([]Op, 0, len(removes)+len(creates)+len(updates))
	plan.Ops = append(plan.Ops, removes...)
	plan.Ops = append(plan.Ops, creates...)
	plan.Ops = append(plan.Ops, updates...)
	return plan, nil
}

// desiredSeries lists the series for the inputs in draw order: price,
// volume, indicators in config order, comparisons in input order. A later
// config with the same identity as an earlier one replaces it.
func desiredSeries(in Inputs) ([]desired, error) {
	var out []desired
	index := make(map[SeriesKey]int)
	add := func(d desired) {
		if i, ok := index[d.key]; ok {
			out[i] = d
			return
		}
		index[d.key] = len(out)
		out = append(out, d)
	}

	prices := in.Prices
	if len(prices) == 0 {
		return nil, nil
	}

	add(desired{
		key:     PriceKey,
		kind:    KindCandlestick,
		style:   StyleHints{Pane: PanePrice, Title: in.Ticker, PriceFormat: "price"},
		visible: true,
		gen:     in.Generation,
		compute: func() (SeriesData, error) { return SeriesData{Candles: prices}, nil },
	})
	add(desired{
		key:     VolumeKey,
		kind:    KindVolume,
		style:   StyleHints{Pane: PaneVolume, Title: "volume", PriceFormat: "volume"},
		visible: true,
		gen:     in.Generation,
		compute: func() (SeriesData, error) { return SeriesData{Line: model.Volumes(prices)}, nil },
	})

	for i, cfg := range in.Indicators {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("indicator %d: %w", i, err)
		}
		cfg := cfg.Resolve()
		kind, style := styleFor(cfg)
		add(desired{
			key:     IndicatorKey(cfg),
			kind:    kind,
			style:   style,
			visible: cfg.IsVisible(),
			gen:     in.Generation,
			compute: func() (SeriesData, error) { return indicatorData(prices, cfg) },
		})
	}

	for _, c := range in.Comparisons {
		if c.Ticker == in.Ticker {
			continue
		}
		points := c.Points
		add(desired{
			key:     ComparisonKey(c.Ticker),
			kind:    KindLine,
			style:   StyleHints{Color: c.Color, Pane: PaneCompare, Title: c.Ticker, PriceFormat: "percent"},
			visible: true,
			gen:     c.Generation,
			compute: func() (SeriesData, error) {
				return SeriesData{Line: series.Normalize(points)}, nil
			},
		})
	}
	return out, nil
}

// indicatorData computes one indicator and aligns it onto the price times.
func indicatorData(prices []model.PricePoint, cfg model.IndicatorConfig) (SeriesData, error) {
	out := indicator.Compute(prices, cfg)
	switch cfg.Type {
	case model.Bollinger:
		bands, err := series.AlignBands(prices, out.Bands)
		if err != nil {
			return SeriesData{}, err
		}
		return SeriesData{Bands: bands}, nil
	case model.MACD:
		if out.MACD.Empty() {
			return SeriesData{}, nil
		}
		m, err := series.AlignMACD(prices, out.MACD)
		if err != nil {
			return SeriesData{}, err
		}
		return SeriesData{MACD: &m}, nil
	default:
		line, err := series.Align(prices, out.Values)
		if err != nil {
			return SeriesData{}, err
		}
		return SeriesData{Line: line}, nil
	}
}
