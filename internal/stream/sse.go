// Package stream implements Server-Sent Events (SSE) delivery of lazily
// computed groundtracks. Points are propagated as the client consumes them,
// so a long window never materializes in memory.
//
// SSE message format, in order:
//
//	data: {"type":"metadata","norad_id":25544,"start":"...","end":"...","step_seconds":30,"points":2881,"catalog_fetched_at":"..."}\n\n
//	data: {"type":"points","points":[{"time":"...","lat":..,"lon":..,"alt_km":..},...]}\n\n
//	data: {"type":"done","count":2881}\n\n
//
// A propagation failure mid-stream ends the stream with
//
//	data: {"type":"error","error":"..."}\n\n
package stream

import (
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/httputil"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxPoints = 200000
	DefaultBatchSize = 500
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int  // Max concurrent streams per IP (default: 10).
	MaxPoints          int  // Largest window a single stream may cover, in samples.
	BatchSize          int  // Points per SSE message.
	TrustProxy         bool // Use forwarded headers for per-IP accounting.
}

// Tracker is the part of tracking.Service the streamer needs.
type Tracker interface {
	Snapshot() (*tle.Catalog, error)
	GroundtrackSeq(id int, start, end time.Time, step time.Duration) iter.Seq2[tracking.GroundPoint, error]
}

// Handler manages SSE streaming connections.
type Handler struct {
	tracker Tracker
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(tracker Tracker, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxPoints <= 0 {
		config.MaxPoints = DefaultMaxPoints
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Handler{
		tracker: tracker,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// MaxPoints returns the configured per-stream sample limit.
func (h *Handler) MaxPoints() int {
	return h.config.MaxPoints
}

// ServeGroundtrack streams the groundtrack of id over [start, end]. The caller
// has already validated the id and the window against MaxPoints.
func (h *Handler) ServeGroundtrack(w http.ResponseWriter, r *http.Request, id int, start, end time.Time, step time.Duration) {
	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.StreamClientConnected()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"norad_id", id,
		"step", step.String(),
	)

	var sent int
	defer func() {
		h.limiter.release(ip)
		metrics.StreamClientDisconnected()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"norad_id", id,
			"points_sent", sent,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long windows outlive the server's WriteTimeout; deadlines are extended per write.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	n, _ := tracking.SampleCount(start, end, step)
	meta := metadataMessage{
		Type:        "metadata",
		NORADID:     id,
		Start:       start.UTC(),
		End:         end.UTC(),
		StepSeconds: step.Seconds(),
		Points:      n,
	}
	if cat, err := h.tracker.Snapshot(); err == nil {
		meta.CatalogFetchedAt = cat.FetchedAt.UTC()
	}
	if err := c.sendJSON(meta); err != nil {
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ctx := r.Context()
	batch := make([]tracking.GroundPoint, 0, h.config.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.sendJSON(pointsMessage{Type: "points", Points: batch}); err != nil {
			return err
		}
		sent += len(batch)
		batch = batch[:0]
		return nil
	}

	for p, err := range h.tracker.GroundtrackSeq(id, start, end, step) {
		if err != nil {
			if ferr := flush(); ferr != nil {
				h.logger.Warn("stream send error", "remote_ip", ip, "error", ferr)
				return
			}
			h.logger.Warn("stream propagation error", "norad_id", id, "error", err)
			c.sendJSON(errorMessage{Type: "error", Error: err.Error()})
			return
		}
		batch = append(batch, p)
		if len(batch) < h.config.BatchSize {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := flush(); err != nil {
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
	}
	if err := flush(); err != nil {
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return
	}
	metrics.ObserveGroundtrack(sent)
	c.sendJSON(doneMessage{Type: "done", Count: sent})
}

// SSE message payload types.

type metadataMessage struct {
	Type             string    `json:"type"`
	NORADID          int       `json:"norad_id"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	StepSeconds      float64   `json:"step_seconds"`
	Points           int       `json:"points"`
	CatalogFetchedAt time.Time `json:"catalog_fetched_at,omitzero"`
}

type pointsMessage struct {
	Type   string                 `json:"type"`
	Points []tracking.GroundPoint `json:"points"`
}

type doneMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
