package chart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marketchart/internal/metrics"
	"marketchart/internal/model"
)

// ErrExportFailed is returned when the surface cannot produce an image.
var ErrExportFailed = errors.New("chart: export failed")

// Compositor owns one rendering surface at a time and the registry of
// series drawn on it. It is not safe for concurrent use.
type Compositor struct {
	factory SurfaceFactory
	metrics *metrics.Metrics // optional

	surface   Surface
	ticker    string
	timeframe model.Timeframe
	reg       *Registry
}

// NewCompositor creates a compositor that builds surfaces with factory.
// m may be nil.
func NewCompositor(factory SurfaceFactory, m *metrics.Metrics) *Compositor {
	return &Compositor{
		factory: factory,
		metrics: m,
		reg:     NewRegistry(),
	}
}

// View returns the registry for plan building.
func (c *Compositor) View() RegistryView { return c.reg }

// Open reports whether a surface is currently held, and for which view.
func (c *Compositor) Open() (ticker string, tf model.Timeframe, ok bool) {
	return c.ticker, c.timeframe, c.surface != nil
}

// Apply executes a plan. A plan for a ticker/timeframe other than the
// current one tears the current surface down and builds a new one first;
// callers should Teardown before building such a plan so that it is diffed
// against an empty registry.
//
// Ops are applied in order. A failing op is skipped and reported; the
// remaining ops still run, and the registry only records ops that
// succeeded.
func (c *Compositor) Apply(ctx context.Context, plan Plan) error {
	if plan.Empty() {
		c.countOp("skip")
		return nil
	}
	start := time.Now()
	if err := c.ensureSurface(ctx, plan.Ticker, plan.Timeframe); err != nil {
		return err
	}

	var errs []error
	for _, op := range plan.Ops {
		if err := c.applyOp(op); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op.Kind, op.Key, err))
		}
	}

	if plan.ReplaceMarkers {
		if price, ok := c.reg.Lookup(PriceKey); ok {
			if err := c.surface.SetMarkers(price.Handle, plan.Markers); err != nil {
				errs = append(errs, fmt.Errorf("markers: %w", err))
			} else {
				c.countOp("markers")
			}
		}
	}

	if c.metrics != nil {
		c.metrics.RecomputeDur.Observe(time.Since(start).Seconds())
		c.metrics.RecomputesTotal.Inc()
	}
	return errors.Join(errs...)
}

func (c *Compositor) applyOp(op Op) error {
	switch op.Kind {
	case OpRemove:
		e, ok := c.reg.remove(op.Key)
		if !ok {
			return nil
		}
		c.countOp("remove")
		return c.surface.RemoveSeries(e.Handle)

	case OpCreate:
		h, err := c.surface.CreateSeries(op.SeriesKind, op.Style)
		if err != nil {
			return err
		}
		if err := c.surface.SetSeriesData(h, drawn(op)); err != nil {
			c.surface.RemoveSeries(h)
			return err
		}
		c.countOp("create")
		return c.reg.create(Entry{
			Key:        op.Key,
			Kind:       op.SeriesKind,
			Handle:     h,
			Data:       op.Data,
			Visible:    op.Visible,
			Generation: op.Generation,
		})

	case OpUpdate:
		e, ok := c.reg.Lookup(op.Key)
		if !ok {
			// The surface was rebuilt since the plan was made.
			op.Kind = OpCreate
			return c.applyOp(op)
		}
		if err := c.surface.SetSeriesData(e.Handle, drawn(op)); err != nil {
			return err
		}
		c.countOp("update")
		return c.reg.update(op.Key, op.Data, op.Visible, op.Generation)
	}
	return fmt.Errorf("unknown op %d", op.Kind)
}

// drawn is the data sent to the surface: hidden series are drawn empty.
func drawn(op Op) SeriesData {
	if !op.Visible {
		return SeriesData{}
	}
	return op.Data
}

func (c *Compositor) ensureSurface(ctx context.Context, ticker string, tf model.Timeframe) error {
	if c.surface != nil && c.ticker == ticker && c.timeframe == tf {
		return nil
	}
	if err := c.Teardown(); err != nil {
		log.Printf("[chart] teardown before %s/%s: %v", ticker, tf, err)
	}
	s, err := c.factory(ctx, ticker, tf)
	if err != nil {
		return fmt.Errorf("create surface for %s/%s: %w", ticker, tf, err)
	}
	c.surface = s
	c.ticker = ticker
	c.timeframe = tf
	return nil
}

// Teardown removes every registered series and releases the surface. The
// next Apply builds a new surface. Tearing down a compositor without a
// surface is a no-op.
func (c *Compositor) Teardown() error {
	if c.surface == nil {
		return nil
	}
	var errs []error
	for _, k := range c.reg.Keys() {
		e, _ := c.reg.remove(k)
		if err := c.surface.RemoveSeries(e.Handle); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	if err := c.surface.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release: %w", err))
	}
	c.surface = nil
	c.ticker = ""
	c.timeframe = ""
	return errors.Join(errs...)
}

// Export returns an image of the current chart. Failure leaves the chart
// untouched.
func (c *Compositor) Export() ([]byte, error) {
	if c.surface == nil {
		return nil, fmt.Errorf("%w: no chart loaded", ErrExportFailed)
	}
	img, err := c.surface.ExportImage()
	if err != nil {
		if c.metrics != nil {
			c.metrics.ExportFailures.Inc()
		}
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return img, nil
}

func (c *Compositor) countOp(op string) {
	if c.metrics != nil {
		c.metrics.SurfaceOps.WithLabelValues(op).Inc()
	}
}
