package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// StageStats summarizes the recent durations of one pipeline stage.
type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget,omitempty"`
}

type StageCounter struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageStats   `json:"stages"`
	Counters    []StageCounter `json:"counters,omitempty"`
}

// stageBudgetsMS are p95 targets for the extraction stages. The model call
// dominates; the worst case adds 3s of retry backoff on top.
var stageBudgetsMS = map[string]float64{
	"sanitize":    1,
	"prompt":      2,
	"parse":       2,
	"model_call":  6000,
	"chat_total":  9000,
	"voice_total": 9000,
}

type stageRing struct {
	samples []float64
	pos     int
	full    bool
	last    float64
}

func (r *stageRing) add(v float64) {
	r.samples[r.pos] = v
	r.last = v
	r.pos = (r.pos + 1) % len(r.samples)
	if r.pos == 0 {
		r.full = true
	}
}

func (r *stageRing) values() []float64 {
	n := r.pos
	if r.full {
		n = len(r.samples)
	}
	out := make([]float64, n)
	copy(out, r.samples[:n])
	return out
}

type stageWindow struct {
	mu       sync.Mutex
	size     int
	rings    map[string]*stageRing
	counters map[string]int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{
		size:     size,
		rings:    make(map[string]*stageRing),
		counters: make(map[string]int),
	}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	stage = strings.TrimSpace(stage)
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		r = &stageRing{samples: make([]float64, w.size)}
		w.rings[stage] = r
	}
	r.add(ms)
}

func (w *stageWindow) Count(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counters[name]++
}

func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.rings)),
	}
	for stage, r := range w.rings {
		vals := r.values()
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		var sum float64
		for _, v := range vals {
			sum += v
		}
		st := StageStats{
			Stage:       stage,
			Samples:     len(vals),
			LastMS:      round2(r.last),
			AvgMS:       round2(sum / float64(len(vals))),
			P50MS:       round2(percentile(vals, 0.50)),
			P95MS:       round2(percentile(vals, 0.95)),
			MaxMS:       round2(vals[len(vals)-1]),
			BudgetP95MS: stageBudgetsMS[stage],
		}
		st.OverBudget = st.BudgetP95MS > 0 && st.P95MS > st.BudgetP95MS
		snap.Stages = append(snap.Stages, st)
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].Stage < snap.Stages[j].Stage })

	for name, n := range w.counters {
		snap.Counters = append(snap.Counters, StageCounter{Name: name, Count: n})
	}
	sort.Slice(snap.Counters, func(i, j int) bool { return snap.Counters[i].Name < snap.Counters[j].Name })
	return snap
}

// percentile interpolates linearly between the closest ranks of a sorted
// slice.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
