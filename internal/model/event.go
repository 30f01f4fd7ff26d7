package model

// EventMarker is a discrete event drawn as a marker on the price series.
// Markers are read-only: they are passed to the rendering surface unchanged.
type EventMarker struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Timestamp      int64   `json:"timestamp"`       // epoch seconds
	EventType      string  `json:"event_type"`      // earnings, news, dividend, ...
	Severity       float64 `json:"severity"`        // [0,1]
	SentimentScore float64 `json:"sentiment_score"` // [-1,1]
}
