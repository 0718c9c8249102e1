package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/fallback"
	"github.com/amadeus-ai/nexuskit/storage"
)

// Decision is the outcome of one optimization pass for one campaign.
type Decision struct {
	CampaignID string  `json:"campaign_id"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
}

// Orchestrator deduplicates incoming pattern records, persists new ones
// through a retrying executor, accumulates KPIs per campaign and reacts to
// anomalous records by debiting the owning campaign's token budget.
type Orchestrator struct {
	logger           *slog.Logger
	store            storage.MetadataStore
	campaigns        *CampaignManager
	kpis             *KPICollector
	fallbackOpts     []fallback.Option
	anomalyTokenCost float64

	// mu guards the dedup cache and the KPI score log. The cache lives for
	// the process lifetime and is never reloaded from storage.
	mu       sync.Mutex
	patterns []Pattern
	scores   map[string]map[string]float64
	scoreSeq map[string][]string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithKPICollector sets the windowed KPI collector fed by Monitor.
func WithKPICollector(kpis *KPICollector) Option {
	return func(o *Orchestrator) {
		o.kpis = kpis
	}
}

// WithFallbackOptions configures the executor created for each persistence
// attempt.
func WithFallbackOptions(opts ...fallback.Option) Option {
	return func(o *Orchestrator) {
		o.fallbackOpts = opts
	}
}

// WithAnomalyTokenCost sets the tokens debited per anomalous record
// (default 1).
func WithAnomalyTokenCost(cost float64) Option {
	return func(o *Orchestrator) {
		o.anomalyTokenCost = cost
	}
}

// New creates an orchestrator persisting through store and budgeting
// through campaigns.
func New(store storage.MetadataStore, campaigns *CampaignManager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:           slog.Default(),
		store:            store,
		campaigns:        campaigns,
		kpis:             NewKPICollector(time.Minute),
		anomalyTokenCost: 1,
		scores:           make(map[string]map[string]float64),
		scoreSeq:         make(map[string][]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Monitor processes one batch of pattern records. New records (by
// structural equality against the in-memory cache) are cached, persisted
// and counted into the campaign KPI log; every record then goes through
// anomaly orchestration. A persistence failure after retries halts that
// record only. The pass ends with one synchronous optimization over all
// registered campaigns.
func (o *Orchestrator) Monitor(ctx context.Context, patterns []Pattern) ([]Decision, error) {
	var firstErr error
	for _, pattern := range patterns {
		if o.remember(pattern) {
			if err := o.persist(ctx, pattern); err != nil {
				o.logger.Error("failed to persist new pattern",
					"campaign", pattern.campaign(),
					"category", pattern.category(),
					"error", err,
				)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			o.logger.Info("new pattern detected and saved",
				"campaign", pattern.campaign(),
				"category", pattern.category(),
				"score", pattern.Score,
			)
			o.logKPI(pattern)
		} else {
			o.logger.Debug("pattern already known",
				"campaign", pattern.campaign(),
				"category", pattern.category(),
			)
		}

		o.orchestrate(ctx, pattern)
	}

	return o.Optimize(), firstErr
}

// Optimize picks, for every registered campaign with logged KPIs, the
// category with the highest observed score. Ties go to the category seen
// first.
func (o *Orchestrator) Optimize() []Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	var decisions []Decision
	for _, campaignID := range o.campaigns.IDs() {
		categories := o.scoreSeq[campaignID]
		if len(categories) == 0 {
			continue
		}

		best := Decision{CampaignID: campaignID, Category: categories[0], Score: o.scores[campaignID][categories[0]]}
		for _, category := range categories[1:] {
			if score := o.scores[campaignID][category]; score > best.Score {
				best.Category = category
				best.Score = score
			}
		}

		o.logger.Info("campaign optimized",
			"campaign", best.CampaignID,
			"category", best.Category,
			"score", best.Score,
		)
		decisions = append(decisions, best)
	}
	return decisions
}

// KnownPatterns returns a snapshot of the dedup cache.
func (o *Orchestrator) KnownPatterns() []Pattern {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := make([]Pattern, len(o.patterns))
	copy(snapshot, o.patterns)
	return snapshot
}

// KPIs returns the windowed KPI collector.
func (o *Orchestrator) KPIs() *KPICollector {
	return o.kpis
}

// remember returns true and caches the pattern when it has not been seen
// before.
func (o *Orchestrator) remember(pattern Pattern) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, known := range o.patterns {
		if known.Equal(pattern) {
			return false
		}
	}
	o.patterns = append(o.patterns, pattern)
	return true
}

// persist writes one pattern as a metadata record through a fresh retrying
// executor, so a transient storage failure is retried before surfacing.
func (o *Orchestrator) persist(ctx context.Context, pattern Pattern) error {
	opts := append([]fallback.Option{fallback.WithLogger(o.logger)}, o.fallbackOpts...)
	exec := fallback.New("orchestrator.persist", opts...)

	return exec.Run(ctx, func(ctx context.Context) error {
		return o.store.InsertMetadataBatch(ctx, []storage.MetadataRecord{patternRecord(pattern)})
	})
}

// orchestrate reacts to one record. Anomalous records are warn-logged,
// persisted again through fallback and charged against the owning
// campaign's token budget.
func (o *Orchestrator) orchestrate(ctx context.Context, pattern Pattern) {
	if !pattern.Anomaly {
		return
	}

	o.logger.Warn("anomaly pattern detected",
		"campaign", pattern.campaign(),
		"category", pattern.category(),
		"score", pattern.Score,
	)

	if err := o.persist(ctx, pattern); err != nil {
		o.logger.Error("failed to persist anomaly pattern", "error", err)
	}

	switch err := o.campaigns.SpendTokens(pattern.campaign(), o.anomalyTokenCost); {
	case stderrors.Is(err, errors.ErrBudgetExhausted):
		o.logger.Warn("campaign budget exhausted, anomaly handling not charged",
			"campaign", pattern.campaign(),
		)
	case stderrors.Is(err, errors.ErrCampaignUnknown):
		o.logger.Debug("anomaly for unregistered campaign", "campaign", pattern.campaign())
	}
}

// logKPI records the pattern's score into the per-campaign score log and
// the windowed collector. Records without a score count as 1.
func (o *Orchestrator) logKPI(pattern Pattern) {
	campaign := pattern.campaign()
	category := pattern.category()
	value := pattern.Score
	if value == 0 {
		value = 1
	}

	o.mu.Lock()
	if _, ok := o.scores[campaign]; !ok {
		o.scores[campaign] = make(map[string]float64)
	}
	if _, ok := o.scores[campaign][category]; !ok {
		o.scoreSeq[campaign] = append(o.scoreSeq[campaign], category)
	}
	if value > o.scores[campaign][category] {
		o.scores[campaign][category] = value
	}
	o.mu.Unlock()

	o.kpis.Record(fmt.Sprintf("%s.%s", campaign, category), value, nil)
}

// patternRecord maps a pattern to its stored metadata form.
func patternRecord(pattern Pattern) storage.MetadataRecord {
	environment := pattern.Environment
	if environment == "" {
		environment = "default"
	}
	role := pattern.Role
	if role == "" {
		role = "system"
	}

	metadata := map[string]any{
		"category":    pattern.category(),
		"campaign_id": pattern.campaign(),
		"score":       pattern.Score,
		"anomaly":     pattern.Anomaly,
	}
	for k, v := range pattern.Attributes {
		metadata[k] = v
	}

	return storage.MetadataRecord{
		EntityID:    pattern.campaign(),
		EntityType:  "pattern",
		Category:    pattern.category(),
		Environment: environment,
		Role:        role,
		Metadata:    metadata,
	}
}
