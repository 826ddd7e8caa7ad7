package propagation

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
)

// modelSet holds the models initialized for one catalog snapshot.
// Immutable after construction; safe for concurrent reads.
type modelSet struct {
	catalog *tle.Catalog
	models  map[int]*Model
	errs    map[int]error
}

// Propagator hands out initialized models for the records of the current
// catalog snapshot. Only model initialization is cached; every StateAt call
// is computed fresh.
type Propagator struct {
	maxEpochAge time.Duration
	logger      *slog.Logger

	set   atomic.Pointer[modelSet]
	setMu sync.Mutex // serializes rebuilds
}

// NewPropagator creates a Propagator. maxEpochAge of 0 disables the epoch window.
func NewPropagator(maxEpochAge time.Duration, logger *slog.Logger) *Propagator {
	return &Propagator{maxEpochAge: maxEpochAge, logger: logger}
}

// Model returns the model for id in cat, building the snapshot's model set on
// first use. Errors wrap ErrPropagation.
func (p *Propagator) Model(cat *tle.Catalog, id int) (*Model, error) {
	set := p.models(cat)
	if m, ok := set.models[id]; ok {
		return m, nil
	}
	if err, ok := set.errs[id]; ok {
		return nil, err
	}
	return nil, fmt.Errorf("%w: NORAD %d not in catalog snapshot", ErrPropagation, id)
}

// StateAt propagates record id of cat to t.
func (p *Propagator) StateAt(cat *tle.Catalog, id int, t time.Time) (StateVector, error) {
	m, err := p.Model(cat, id)
	if err != nil {
		return StateVector{}, err
	}
	sv, err := m.StateAt(t)
	if err != nil {
		metrics.IncPropagationErrors("propagate")
	}
	return sv, err
}

// models returns the model set for cat, rebuilding it if the snapshot changed
// (double-checked locking).
func (p *Propagator) models(cat *tle.Catalog) *modelSet {
	if s := p.set.Load(); s != nil && s.catalog == cat {
		return s
	}

	p.setMu.Lock()
	defer p.setMu.Unlock()

	if s := p.set.Load(); s != nil && s.catalog == cat {
		return s
	}

	start := time.Now()
	ids := cat.IDs()
	s := &modelSet{
		catalog: cat,
		models:  make(map[int]*Model, len(ids)),
		errs:    make(map[int]error),
	}
	for _, id := range ids {
		rec, _ := cat.Lookup(id)
		m, err := NewModel(rec, WithMaxEpochAge(p.maxEpochAge))
		if err != nil {
			metrics.IncPropagationErrors("init")
			p.logger.Debug("model init failed", "norad_id", id, "error", err)
			s.errs[id] = err
			continue
		}
		metrics.IncModelBuilds()
		s.models[id] = m
	}

	p.logger.Info("propagation models rebuilt",
		"models", len(s.models),
		"failed", len(s.errs),
		"catalog_fetched_at", cat.FetchedAt.UTC().Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	p.set.Store(s)
	return s
}
