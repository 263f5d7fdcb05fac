package metrics

import (
	"time"

	"ragchat/internal/events"
)

// ClientMetrics are the series the chat client maintains.
type ClientMetrics struct {
	Streams        *Counter
	StreamFailures *Counter
	Malformed      *Counter
	Uploads        *Counter
	UploadFailures *Counter
	ActiveStreams  *Gauge
	StreamDuration *Histogram
}

// Register creates the client series on c.
func Register(c *Collector) *ClientMetrics {
	return &ClientMetrics{
		Streams:        c.Counter("ragchat_streams_total", "Message streams started", ""),
		StreamFailures: c.Counter("ragchat_stream_failures_total", "Message streams that ended in the failed state", ""),
		Malformed:      c.Counter("ragchat_malformed_events_total", "Stream lines skipped because their payload did not decode", ""),
		Uploads:        c.Counter("ragchat_uploads_total", "Files uploaded successfully", ""),
		UploadFailures: c.Counter("ragchat_upload_failures_total", "Files rejected locally or by the service", ""),
		ActiveStreams:  c.Gauge("ragchat_active_streams", "Streams currently being read", ""),
		StreamDuration: c.Histogram("ragchat_stream_duration_seconds", "Time from send to end of stream", "",
			[]float64{0.5, 1, 2, 5, 10, 30, 60, 120}),
	}
}

// Subscribe feeds the series from bus events.
func (m *ClientMetrics) Subscribe(bus *events.Bus) {
	bus.On(events.StreamStarted, func(events.Event) {
		m.Streams.Inc()
		m.ActiveStreams.Inc()
	})
	bus.On(events.StreamCompleted, func(e events.Event) {
		m.ActiveStreams.Dec()
		m.observeDuration(e)
	})
	bus.On(events.StreamFailed, func(e events.Event) {
		m.ActiveStreams.Dec()
		m.StreamFailures.Inc()
		m.observeDuration(e)
	})
	bus.On(events.StreamMalformed, func(events.Event) { m.Malformed.Inc() })
	bus.On(events.AttachmentUploaded, func(events.Event) { m.Uploads.Inc() })
	bus.On(events.AttachmentRejected, func(events.Event) { m.UploadFailures.Inc() })
	bus.On(events.AttachmentFailed, func(events.Event) { m.UploadFailures.Inc() })
}

func (m *ClientMetrics) observeDuration(e events.Event) {
	if d, ok := e.Payload["duration"].(time.Duration); ok {
		m.StreamDuration.Observe(d.Seconds())
	}
}
