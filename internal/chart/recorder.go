package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"marketchart/internal/model"
)

// RecordedSeries is the state of one series on a Recorder.
type RecordedSeries struct {
	Kind    SeriesKind          `json:"kind"`
	Style   StyleHints          `json:"style"`
	Data    SeriesData          `json:"data"`
	Markers []model.EventMarker `json:"markers,omitempty"`
	Writes  int                 `json:"writes"`
}

// Recorder is an in-memory Surface. It draws nothing; it keeps the series
// it was given and a log of calls. chartctl uses it to dump a chart as
// JSON, and tests use it to observe the compositor.
type Recorder struct {
	mu       sync.Mutex
	Ticker   string
	TF       model.Timeframe
	next     Handle
	series   map[Handle]*RecordedSeries
	calls    []string
	released bool

	// FailCreate, FailExport make the corresponding call fail.
	FailCreate map[SeriesKind]error
	FailExport error
}

// NewRecorder returns an empty recorder for a ticker/timeframe.
func NewRecorder(ticker string, tf model.Timeframe) *Recorder {
	return &Recorder{
		Ticker: ticker,
		TF:     tf,
		series: make(map[Handle]*RecordedSeries),
	}
}

// RecorderFactory is a SurfaceFactory that records every surface it builds.
type RecorderFactory struct {
	mu    sync.Mutex
	Built []*Recorder
}

// New implements SurfaceFactory.
func (f *RecorderFactory) New(_ context.Context, ticker string, tf model.Timeframe) (Surface, error) {
	r := NewRecorder(ticker, tf)
	f.mu.Lock()
	f.Built = append(f.Built, r)
	f.mu.Unlock()
	return r, nil
}

// Count returns the number of surfaces built so far.
func (f *RecorderFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Built)
}

// Last returns the most recently built recorder, or nil.
func (f *RecorderFactory) Last() *Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Built) == 0 {
		return nil
	}
	return f.Built[len(f.Built)-1]
}

func (r *Recorder) CreateSeries(kind SeriesKind, style StyleHints) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailCreate[kind]; err != nil {
		return 0, err
	}
	r.next++
	r.series[r.next] = &RecordedSeries{Kind: kind, Style: style}
	r.calls = append(r.calls, fmt.Sprintf("create %s %s", kind, style.Title))
	return r.next, nil
}

func (r *Recorder) SetSeriesData(h Handle, data SeriesData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[h]
	if !ok {
		return fmt.Errorf("recorder: unknown handle %d", h)
	}
	s.Data = data
	s.Writes++
	r.calls = append(r.calls, fmt.Sprintf("data %s %d", s.Style.Title, data.Len()))
	return nil
}

func (r *Recorder) RemoveSeries(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[h]
	if !ok {
		return fmt.Errorf("recorder: unknown handle %d", h)
	}
	delete(r.series, h)
	r.calls = append(r.calls, "remove "+s.Style.Title)
	return nil
}

func (r *Recorder) SetMarkers(h Handle, markers []model.EventMarker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[h]
	if !ok {
		return fmt.Errorf("recorder: unknown handle %d", h)
	}
	s.Markers = append([]model.EventMarker(nil), markers...)
	r.calls = append(r.calls, fmt.Sprintf("markers %d", len(markers)))
	return nil
}

// ExportImage returns the recorded series as JSON.
func (r *Recorder) ExportImage() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailExport != nil {
		return nil, r.FailExport
	}
	return json.Marshal(r.snapshotLocked())
}

func (r *Recorder) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	r.calls = append(r.calls, "release")
	return nil
}

// Series returns the live series keyed by title.
func (r *Recorder) Series() map[string]RecordedSeries {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Recorder) snapshotLocked() map[string]RecordedSeries {
	out := make(map[string]RecordedSeries, len(r.series))
	for _, s := range r.series {
		out[s.Style.Title] = *s
	}
	return out
}

// Calls returns the call log.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Released reports whether Release was called.
func (r *Recorder) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
