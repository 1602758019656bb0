package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"memorybank/domain"
	"memorybank/domain/services"
	appErrors "memorybank/pkg/errors"

	"go.uber.org/zap"
)

// titleFields are the metadata slots treated as title-like for the
// keyword boost.
var titleFields = []string{"title", "name", "topic"}

// bufferMemory is the recency- and importance-weighted flat cache.
type bufferMemory struct {
	core
	entries map[string]*domain.MemoryEntry
}

var _ Memory = (*bufferMemory)(nil)

func newBufferMemory(cfg Config, opts Options) *bufferMemory {
	b := &bufferMemory{
		core:    newCore(BackendBuffer, cfg, opts),
		entries: make(map[string]*domain.MemoryEntry),
	}
	b.loadFn = b.load
	return b
}

// load pulls all entries for this system into the cache. Called once,
// under the hydration guard, with the lock held.
func (b *bufferMemory) load(ctx context.Context) error {
	entries, err := b.store.FindEntries(ctx, b.systemID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		b.entries[e.Key] = e
	}
	b.metrics.CacheSize = len(b.entries)
	b.logger.Info("hydrated buffer cache", zap.Int("entries", len(b.entries)))
	return nil
}

func (b *bufferMemory) AddMemory(ctx context.Context, entry *domain.MemoryEntry) (err error) {
	ctx, span := b.startSpan(ctx, "add")
	start := time.Now()
	defer func() { b.finish(span, "add", start, err) }()

	if entry == nil || strings.TrimSpace(entry.Key) == "" {
		return appErrors.NewValidation("memory key is required")
	}
	if err = b.ensureHydrated(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e := entry.Clone()
	e.Importance = domain.ClampImportance(e.Importance)
	now := time.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Expires == nil && b.cfg.TTL > 0 {
		expiry := now.Add(b.cfg.TTL)
		e.Expires = &expiry
	}

	if err = b.store.SaveEntry(ctx, b.systemID, e); err != nil {
		return appErrors.Wrap(err, "persist memory entry")
	}
	b.entries[e.Key] = e
	b.prune(ctx, now)

	b.metrics.RecordInsertion(time.Since(start))
	b.metrics.CacheSize = len(b.entries)
	if b.collector != nil {
		b.collector.EntriesAdded.WithLabelValues(string(b.backend)).Inc()
	}
	return nil
}

func (b *bufferMemory) GetMemory(ctx context.Context, key string) (entry *domain.MemoryEntry, err error) {
	ctx, span := b.startSpan(ctx, "get")
	start := time.Now()
	defer func() { b.finish(span, "get", start, err) }()

	if err = b.ensureHydrated(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	e, ok := b.entries[key]
	if ok && e.Expired(now) {
		delete(b.entries, key)
		b.metrics.CacheSize = len(b.entries)
		if storeErr := b.store.DeleteEntry(ctx, b.systemID, key); storeErr != nil {
			b.logger.Warn("failed to delete expired entry", zap.String("key", key), zap.Error(storeErr))
		}
		ok = false
	}
	b.recordLookup(ok)
	if !ok {
		return nil, appErrors.NewNotFound("memory entry not found")
	}

	b.touch(ctx, e, now)
	return e.Clone(), nil
}

func (b *bufferMemory) UpdateMemory(ctx context.Context, key string, update Update) (err error) {
	ctx, span := b.startSpan(ctx, "update")
	start := time.Now()
	defer func() { b.finish(span, "update", start, err) }()

	if err = b.ensureHydrated(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return appErrors.NewNotFound("memory entry not found")
	}

	updated := e.Clone()
	applyUpdate(updated, update)
	if err = b.store.SaveEntry(ctx, b.systemID, updated); err != nil {
		return appErrors.Wrap(err, "persist memory entry")
	}
	b.entries[key] = updated
	b.metrics.RecordInsertion(time.Since(start))
	return nil
}

func (b *bufferMemory) RemoveMemory(ctx context.Context, key string) (err error) {
	ctx, span := b.startSpan(ctx, "remove")
	start := time.Now()
	defer func() { b.finish(span, "remove", start, err) }()

	if err = b.ensureHydrated(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; !ok {
		return appErrors.NewNotFound("memory entry not found")
	}
	if err = b.store.DeleteEntry(ctx, b.systemID, key); err != nil {
		return appErrors.Wrap(err, "delete memory entry")
	}
	delete(b.entries, key)
	b.metrics.CacheSize = len(b.entries)
	if b.collector != nil {
		b.collector.EntriesRemoved.WithLabelValues(string(b.backend)).Inc()
	}
	return nil
}

func (b *bufferMemory) SearchMemories(ctx context.Context, query string, limit int) (results []SearchResult, err error) {
	ctx, span := b.startSpan(ctx, "search")
	start := time.Now()
	defer func() { b.finish(span, "search", start, err) }()

	if err = b.ensureHydrated(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.metrics.RecordRetrieval(time.Since(start)) }()

	now := time.Now()
	if strings.TrimSpace(query) == "" {
		results = b.recencyRanking(now, limit)
	} else {
		results = b.keywordRanking(query, now, limit)
	}

	for _, r := range results {
		if cached, ok := b.entries[r.Entry.Key]; ok {
			b.touch(ctx, cached, now)
			r.Entry.LastAccessed = cached.LastAccessed
			r.Entry.AccessCount = cached.AccessCount
		}
	}
	return results, nil
}

// recencyRanking orders entries that have been accessed, most recent
// first. Never-accessed entries do not participate.
func (b *bufferMemory) recencyRanking(now time.Time, limit int) []SearchResult {
	results := make([]SearchResult, 0, len(b.entries))
	for _, e := range b.entries {
		if e.Expired(now) || e.LastAccessed == nil {
			continue
		}
		results = append(results, SearchResult{Entry: e.Clone(), Score: recencyScore(e, now)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Entry.LastAccessed.After(*results[j].Entry.LastAccessed)
	})
	return capResults(results, limit)
}

// keywordRanking blends keyword overlap with recency, multiplied by
// importance.
func (b *bufferMemory) keywordRanking(query string, now time.Time, limit int) []SearchResult {
	terms := b.analyzer.Terms(query)
	results := make([]SearchResult, 0)
	for _, e := range b.entries {
		if e.Expired(now) {
			continue
		}
		score, matched := b.scoreEntry(e, terms, now)
		if !matched || score < b.cfg.RelevanceThreshold {
			continue
		}
		results = append(results, SearchResult{Entry: e.Clone(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit)
}

// scoreEntry blends keyword overlap with recency and reports whether
// any query term matched at all. Entries matching nothing are not
// relevant to a keyword query, whatever their recency.
func (b *bufferMemory) scoreEntry(e *domain.MemoryEntry, terms []string, now time.Time) (float64, bool) {
	keyword := services.KeywordOverlap(terms, b.analyzer.TokenizeWords(e.Content))

	// Each matching title-like metadata field boosts the keyword score
	// by half again.
	for _, field := range titleFields {
		value, ok := e.Metadata[field].(string)
		if !ok {
			continue
		}
		if services.KeywordOverlap(terms, b.analyzer.TokenizeWords(value)) > 0 {
			keyword *= 1.5
		}
	}

	recency := recencyScore(e, now)
	blended := keyword*(1-b.cfg.RecencyWeight) + recency*b.cfg.RecencyWeight
	return blended * e.Importance, keyword > 0
}

func (b *bufferMemory) Clear(ctx context.Context) (err error) {
	ctx, span := b.startSpan(ctx, "clear")
	start := time.Now()
	defer func() { b.finish(span, "clear", start, err) }()

	if err = b.ensureHydrated(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err = b.store.DeleteEntries(ctx, b.systemID); err != nil {
		return appErrors.Wrap(err, "clear memory entries")
	}
	b.entries = make(map[string]*domain.MemoryEntry)
	b.metrics.CacheSize = 0
	return nil
}

func (b *bufferMemory) Metrics() domain.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics.Snapshot()
}

func (b *bufferMemory) UpdateConfig(patch ConfigPatch) error {
	return b.applyPatch(patch)
}

// prune enforces the capacity bound: expired entries go first, then the
// lowest importance*0.7 + recency*0.3 scorers until the cache fits.
// Called with b.mu held.
func (b *bufferMemory) prune(ctx context.Context, now time.Time) {
	if len(b.entries) <= b.cfg.MaxItems {
		return
	}

	for key, e := range b.entries {
		if e.Expired(now) {
			b.evict(ctx, key)
		}
	}
	if len(b.entries) <= b.cfg.MaxItems {
		return
	}

	type scored struct {
		key   string
		score float64
	}
	candidates := make([]scored, 0, len(b.entries))
	for key, e := range b.entries {
		candidates = append(candidates, scored{
			key:   key,
			score: e.Importance*0.7 + recencyScore(e, now)*0.3,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	surplus := len(b.entries) - b.cfg.MaxItems
	for i := 0; i < surplus && i < len(candidates); i++ {
		b.evict(ctx, candidates[i].key)
	}
}

func (b *bufferMemory) evict(ctx context.Context, key string) {
	delete(b.entries, key)
	if err := b.store.DeleteEntry(ctx, b.systemID, key); err != nil {
		b.logger.Warn("failed to delete pruned entry", zap.String("key", key), zap.Error(err))
	}
	if b.collector != nil {
		b.collector.EntriesPruned.WithLabelValues(string(b.backend)).Inc()
	}
}

// touch records an access on the cached entry and writes it through.
// A write failure degrades to a warning; the read itself still counts.
func (b *bufferMemory) touch(ctx context.Context, e *domain.MemoryEntry, now time.Time) {
	e.Touch(now)
	if err := b.store.SaveEntry(ctx, b.systemID, e); err != nil {
		b.logger.Warn("failed to persist access bookkeeping", zap.String("key", e.Key), zap.Error(err))
	}
}

// applyUpdate folds a partial update into an entry in place.
func applyUpdate(e *domain.MemoryEntry, update Update) {
	if update.Content != nil {
		e.Content = *update.Content
	}
	if update.Metadata != nil {
		e.Metadata = update.Metadata
	}
	if update.Importance != nil {
		e.Importance = domain.ClampImportance(*update.Importance)
	}
	if update.Expires != nil {
		expiry := *update.Expires
		e.Expires = &expiry
	}
}

func capResults(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
