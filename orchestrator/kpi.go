package orchestrator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/storage"
)

// maxSamplesPerSeries bounds the history kept for one series.
const maxSamplesPerSeries = 1000

// sample is one recorded KPI observation.
type sample struct {
	at    time.Time
	value float64
	tags  map[string]string
}

// SeriesStats summarizes the samples of one series inside the window.
type SeriesStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Sum   float64 `json:"sum"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
}

// KPIHook observes every recorded sample.
type KPIHook func(name string, value float64, tags map[string]string)

// KPICollector accumulates named KPI series with bounded history and
// windowed aggregation. Safe for concurrent use.
type KPICollector struct {
	mu     sync.Mutex
	series map[string][]sample
	order  []string
	window time.Duration
	hooks  []KPIHook
	now    func() time.Time
}

// NewKPICollector creates a collector aggregating over the given window.
func NewKPICollector(window time.Duration) *KPICollector {
	if window <= 0 {
		window = time.Minute
	}
	return &KPICollector{
		series: make(map[string][]sample),
		window: window,
		now:    time.Now,
	}
}

// Record appends one observation and fires registered hooks.
func (k *KPICollector) Record(name string, value float64, tags map[string]string) {
	k.mu.Lock()
	if _, ok := k.series[name]; !ok {
		k.order = append(k.order, name)
	}
	samples := append(k.series[name], sample{at: k.now(), value: value, tags: tags})
	if len(samples) > maxSamplesPerSeries {
		samples = samples[len(samples)-maxSamplesPerSeries:]
	}
	k.series[name] = samples
	hooks := make([]KPIHook, len(k.hooks))
	copy(hooks, k.hooks)
	k.mu.Unlock()

	for _, hook := range hooks {
		hook(name, value, tags)
	}
}

// AddHook registers an observer for subsequent Record calls.
func (k *KPICollector) AddHook(hook KPIHook) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hooks = append(k.hooks, hook)
}

// Aggregate reduces the in-window samples of one series. Supported methods
// are "mean", "sum", "max" and "min". The second return is false when the
// window holds no samples.
func (k *KPICollector) Aggregate(name, method string) (float64, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	values := k.windowValues(name)
	if len(values) == 0 {
		return 0, false, nil
	}

	switch method {
	case "mean":
		return sum(values) / float64(len(values)), true, nil
	case "sum":
		return sum(values), true, nil
	case "max":
		return reduce(values, math.Max), true, nil
	case "min":
		return reduce(values, math.Min), true, nil
	default:
		return 0, false, errors.WrapInvalid(errors.ErrInvalidConfig,
			"KPICollector", "Aggregate", "apply method "+method)
	}
}

// Report summarizes every series with in-window samples, in first-recorded
// order.
func (k *KPICollector) Report() map[string]SeriesStats {
	k.mu.Lock()
	defer k.mu.Unlock()

	report := make(map[string]SeriesStats)
	for _, name := range k.order {
		values := k.windowValues(name)
		if len(values) == 0 {
			continue
		}
		report[name] = SeriesStats{
			Count: len(values),
			Mean:  sum(values) / float64(len(values)),
			Sum:   sum(values),
			Max:   reduce(values, math.Max),
			Min:   reduce(values, math.Min),
		}
	}
	return report
}

// Names returns series names in first-recorded order.
func (k *KPICollector) Names() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	names := make([]string, len(k.order))
	copy(names, k.order)
	return names
}

// Clear drops all recorded samples.
func (k *KPICollector) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.series = make(map[string][]sample)
	k.order = nil
}

// Persist writes the current report to the metadata store, one record per
// series.
func (k *KPICollector) Persist(ctx context.Context, store storage.MetadataStore) error {
	report := k.Report()
	if len(report) == 0 {
		return nil
	}

	records := make([]storage.MetadataRecord, 0, len(report))
	for name, stats := range report {
		records = append(records, storage.MetadataRecord{
			EntityID:    name,
			EntityType:  "metrics",
			Category:    name,
			Environment: "default",
			Role:        "system",
			Metadata: map[string]any{
				"count": stats.Count,
				"mean":  stats.Mean,
				"sum":   stats.Sum,
				"max":   stats.Max,
				"min":   stats.Min,
			},
		})
	}

	if err := store.InsertMetadataBatch(ctx, records); err != nil {
		return errors.WrapTransient(err, "KPICollector", "Persist", "store report")
	}
	return nil
}

// windowValues returns the values of one series inside the window. Caller
// holds the lock.
func (k *KPICollector) windowValues(name string) []float64 {
	cutoff := k.now().Add(-k.window)
	var values []float64
	for _, s := range k.series[name] {
		if s.at.Before(cutoff) {
			continue
		}
		values = append(values, s.value)
	}
	return values
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func reduce(values []float64, f func(a, b float64) float64) float64 {
	result := values[0]
	for _, v := range values[1:] {
		result = f(result, v)
	}
	return result
}
