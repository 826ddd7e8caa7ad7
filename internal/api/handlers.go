package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/passes"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/transform"
)

// defaultPassWindow is the search window when end is omitted.
const defaultPassWindow = 24 * time.Hour

type stateResponse struct {
	NORADID     int       `json:"norad_id"`
	Time        time.Time `json:"time"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	AltitudeKm  float64   `json:"altitude_km"`
	VelocityKmS float64   `json:"velocity_kms"`
}

type groundtrackResponse struct {
	NORADID     int                    `json:"norad_id"`
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	StepSeconds float64                `json:"step_seconds"`
	Count       int                    `json:"count"`
	Points      []tracking.GroundPoint `json:"points"`
}

type passResponse struct {
	passes.PassEvent
	DurationSeconds float64 `json:"duration_seconds"`
}

type siteResponse struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	AltKm float64 `json:"alt_km"`
}

type passesResponse struct {
	Site   siteResponse              `json:"site"`
	Start  time.Time                 `json:"start"`
	End    time.Time                 `json:"end"`
	Passes map[string][]passResponse `json:"passes"`
}

type catalogResponse struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	TTLSeconds float64   `json:"ttl_seconds"`
	Stale      bool      `json:"stale"`
	Count      int       `json:"count"`
	Skipped    int       `json:"skipped"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
}

type refreshResponse struct {
	Published bool      `json:"published"`
	Fetched   bool      `json:"fetched"`
	Stale     bool      `json:"stale"`
	Count     int       `json:"count"`
	Skipped   int       `json:"skipped"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GET /api/v1/satellites?limit=N
func (s *Server) handleListSatellites(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	ids, err := s.deps.Tracker.IDs(limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(ids), "ids": ids})
}

// GET /api/v1/satellites/{id}/state?t=
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	t, err := timeParam(r.URL.Query(), "t", s.deps.Clock.Now().UTC())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	g, err := s.deps.Tracker.StateAt(id, t)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		NORADID:     id,
		Time:        g.Time,
		Lat:         g.LatitudeDeg,
		Lon:         g.LongitudeDeg,
		AltitudeKm:  g.AltitudeKm,
		VelocityKmS: g.SpeedKmS,
	})
}

// GET /api/v1/satellites/{id}/summary?t=
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	t, err := timeParam(r.URL.Query(), "t", s.deps.Clock.Now().UTC())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sum, err := s.deps.Tracker.Summary(id, t)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// trackWindow resolves id, start, end and step for groundtrack requests. The
// default window is one orbital period from start.
func (s *Server) trackWindow(r *http.Request) (id int, start, end time.Time, step time.Duration, err error) {
	if id, err = pathID(r); err != nil {
		return
	}
	rec, err := s.deps.Tracker.Record(id)
	if err != nil {
		return
	}
	q := r.URL.Query()
	if start, err = timeParam(q, "start", s.deps.Clock.Now().UTC()); err != nil {
		return
	}
	if end, err = timeParam(q, "end", start.Add(rec.Period())); err != nil {
		return
	}
	step, err = stepParam(q, s.cfg.GroundtrackStep, s.cfg.GroundtrackMinStep, s.cfg.GroundtrackMaxStep)
	return
}

// GET /api/v1/satellites/{id}/groundtrack?start=&end=&step=
func (s *Server) handleGroundtrack(w http.ResponseWriter, r *http.Request) {
	id, start, end, step, err := s.trackWindow(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	points, err := s.deps.Tracker.Groundtrack(id, start, end, step)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groundtrackResponse{
		NORADID:     id,
		Start:       start,
		End:         end,
		StepSeconds: step.Seconds(),
		Count:       len(points),
		Points:      points,
	})
}

// GET /api/v1/stream/groundtrack/{id}?start=&end=&step=
func (s *Server) handleStreamGroundtrack(w http.ResponseWriter, r *http.Request) {
	id, start, end, step, err := s.trackWindow(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	n, err := tracking.SampleCount(start, end, step)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if limit := s.deps.Streamer.MaxPoints(); n > limit {
		s.writeServiceError(w, r, fmt.Errorf("%w: %d samples, limit %d", tracking.ErrWindowTooLarge, n, limit))
		return
	}
	s.deps.Streamer.ServeGroundtrack(w, r, id, start, end, step)
}

// GET /api/v1/passes?ids=25544,44713&lat=&lon=&alt_km=&start=&end=
func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, err := idsParam(q, s.cfg.MaxPassIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	lat, err := floatParam(q, "lat", true, 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	lon, err := floatParam(q, "lon", true, 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	alt, err := floatParam(q, "alt_km", false, 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	site, err := transform.NewSite(lat, lon, alt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	start, err := timeParam(q, "start", s.deps.Clock.Now().UTC())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	end, err := timeParam(q, "end", start.Add(defaultPassWindow))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if end.Before(start) {
		s.writeServiceError(w, r, badParam("end", "before start"))
		return
	}
	if end.Sub(start) > s.cfg.MaxPassWindow {
		s.writeServiceError(w, r, badParam("end", "window longer than %s", s.cfg.MaxPassWindow))
		return
	}

	found, err := s.deps.Passes.PassesOver(r.Context(), ids, site, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make(map[string][]passResponse, len(found))
	for id, events := range found {
		list := make([]passResponse, len(events))
		for i, ev := range events {
			list[i] = passResponse{PassEvent: ev, DurationSeconds: ev.Duration.Seconds()}
		}
		out[strconv.Itoa(id)] = list
	}
	writeJSON(w, http.StatusOK, passesResponse{
		Site:   siteResponse{Lat: site.LatitudeDeg, Lon: site.LongitudeDeg, AltKm: site.HeightKm},
		Start:  start,
		End:    end,
		Passes: out,
	})
}

// GET /api/v1/catalog
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat, err := s.deps.Tracker.Snapshot()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	now := s.deps.Clock.Now()
	writeJSON(w, http.StatusOK, catalogResponse{
		Source:     cat.Source,
		FetchedAt:  cat.FetchedAt.UTC(),
		AgeSeconds: now.Sub(cat.FetchedAt).Seconds(),
		TTLSeconds: cat.TTL.Seconds(),
		Stale:      cat.Stale(now),
		Count:      cat.Len(),
		Skipped:    cat.Skipped,
		EpochMin:   cat.EpochRange.Min,
		EpochMax:   cat.EpochRange.Max,
	})
}

// POST /api/v1/catalog/refresh?force=true
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeServiceError(w, r, badParam("force", "%q is not a boolean", v))
			return
		}
		force = b
	}

	refresh := s.deps.Refresher.Refresh
	if force {
		refresh = s.deps.Refresher.ForceRefresh
	}
	res, err := refresh(r.Context())
	if err != nil {
		s.logger.Warn("manual catalog refresh failed",
			"request_id", requestID(r.Context()),
			"force", force,
			"error", err,
		)
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("manual catalog refresh",
		"request_id", requestID(r.Context()),
		"force", force,
		"published", res.Published,
		"count", res.Count,
	)
	writeJSON(w, http.StatusOK, refreshResponse{
		Published: res.Published,
		Fetched:   res.Fetched,
		Stale:     res.Stale,
		Count:     res.Count,
		Skipped:   res.Skipped,
		FetchedAt: res.FetchedAt.UTC(),
	})
}
