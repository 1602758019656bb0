package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"memorybank/domain"
	"memorybank/domain/services"
	appErrors "memorybank/pkg/errors"
	"memorybank/provider"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// keywordBonus is the flat per-keyword bonus used by the tree
	// strategy's substring passes.
	keywordBonus = 0.1

	// maxChunkKeywords caps the keyword set stored per chunk node.
	maxChunkKeywords = 8

	// maxExcerpts caps the supporting excerpts attached per result.
	maxExcerpts = 3
)

// indexedMemory splits content into overlapping chunks and serves three
// selectable retrieval strategies over them: flat vector similarity,
// keyword table, and a two-level summary tree.
type indexedMemory struct {
	core
	entries map[string]*domain.MemoryEntry
	nodes   map[string]*domain.IndexNode // keyed by node ID

	embedder   provider.Embedder
	fallback   provider.Embedder
	summarizer provider.Summarizer
}

var _ Memory = (*indexedMemory)(nil)

func newIndexedMemory(cfg Config, opts Options) *indexedMemory {
	m := &indexedMemory{
		core:       newCore(BackendIndexed, cfg, opts),
		entries:    make(map[string]*domain.MemoryEntry),
		nodes:      make(map[string]*domain.IndexNode),
		embedder:   opts.Embedder,
		fallback:   provider.NewHashEmbedder(cfg.EmbeddingDim),
		summarizer: opts.Summarizer,
	}
	if m.embedder == nil {
		m.embedder = m.fallback
	}
	m.loadFn = m.load
	return m
}

func (m *indexedMemory) load(ctx context.Context) error {
	entries, err := m.store.FindEntries(ctx, m.systemID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		m.entries[e.Key] = e
	}

	nodes, err := m.store.FindIndexNodes(ctx, m.systemID)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}

	m.refreshCounts()
	m.logger.Info("hydrated chunk index",
		zap.Int("entries", len(m.entries)),
		zap.Int("nodes", len(m.nodes)))
	return nil
}

func (m *indexedMemory) refreshCounts() {
	m.metrics.CacheSize = len(m.entries)
	m.metrics.NodeCount = len(m.nodes)
}

func (m *indexedMemory) AddMemory(ctx context.Context, entry *domain.MemoryEntry) (err error) {
	ctx, span := m.startSpan(ctx, "add")
	start := time.Now()
	defer func() { m.finish(span, "add", start, err) }()

	if entry == nil || strings.TrimSpace(entry.Key) == "" {
		return appErrors.NewValidation("memory key is required")
	}
	if err = m.ensureHydrated(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry.Clone()
	e.Importance = domain.ClampImportance(e.Importance)
	now := time.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Expires == nil && m.cfg.TTL > 0 {
		expiry := now.Add(m.cfg.TTL)
		e.Expires = &expiry
	}

	if err = m.store.SaveEntry(ctx, m.systemID, e); err != nil {
		return appErrors.Wrap(err, "persist memory entry")
	}
	m.entries[e.Key] = e
	m.indexEntry(ctx, e)

	m.metrics.RecordInsertion(time.Since(start))
	m.refreshCounts()
	if m.collector != nil {
		m.collector.EntriesAdded.WithLabelValues(string(m.backend)).Inc()
	}
	return nil
}

// indexEntry builds the chunk nodes (and, under the tree strategy, the
// root summary node) for one entry. Collaborator failures degrade to
// deterministic stand-ins. Called with m.mu held.
func (m *indexedMemory) indexEntry(ctx context.Context, e *domain.MemoryEntry) {
	chunks := chunkText(e.Content, m.cfg.ChunkSize, m.cfg.ChunkOverlap)
	chunkIDs := make([]string, 0, len(chunks))

	for _, ch := range chunks {
		node := &domain.IndexNode{
			ID:      uuid.NewString(),
			Content: ch.Text,
			Metadata: map[string]any{
				domain.MetaMemoryKey: e.Key,
			},
		}
		node.Embedding = m.embed(ctx, ch.Text)

		keywords := m.analyzer.ExtractKeywords(ch.Text)
		if len(keywords) > maxChunkKeywords {
			keywords = keywords[:maxChunkKeywords]
		}
		if len(keywords) > 0 {
			node.SetKeywords(keywords)
		}

		if err := m.store.SaveIndexNode(ctx, m.systemID, node); err != nil {
			m.logger.Warn("failed to persist index node", zap.String("key", e.Key), zap.Error(err))
		}
		m.nodes[node.ID] = node
		chunkIDs = append(chunkIDs, node.ID)
	}

	if m.cfg.Strategy != StrategyTree {
		return
	}

	summary := m.summarize(ctx, e.Content)
	root := &domain.IndexNode{
		ID:       uuid.NewString(),
		Content:  summary,
		Children: chunkIDs,
		IsRoot:   true,
		Metadata: map[string]any{
			domain.MetaMemoryKey: e.Key,
		},
	}
	for _, id := range chunkIDs {
		m.nodes[id].Parent = root.ID
	}
	if err := m.store.SaveIndexNode(ctx, m.systemID, root); err != nil {
		m.logger.Warn("failed to persist root index node", zap.String("key", e.Key), zap.Error(err))
	}
	m.nodes[root.ID] = root
}

// embed produces a vector for text, degrading to the deterministic
// fallback embedder when the real one fails.
func (m *indexedMemory) embed(ctx context.Context, text string) []float32 {
	vec, err := m.embedder.Embed(ctx, text)
	if err == nil {
		return vec
	}
	m.logger.Warn("embedding degraded to deterministic vector", zap.Error(err))
	vec, _ = m.fallback.Embed(ctx, text)
	return vec
}

func (m *indexedMemory) summarize(ctx context.Context, content string) string {
	if m.summarizer == nil {
		return provider.FallbackSummary(content)
	}
	summary, err := m.summarizer.Summarize(ctx, content)
	if err != nil || summary == "" {
		m.logger.Warn("summarization degraded to placeholder", zap.Error(err))
		return provider.FallbackSummary(content)
	}
	return summary
}

func (m *indexedMemory) GetMemory(ctx context.Context, key string) (entry *domain.MemoryEntry, err error) {
	ctx, span := m.startSpan(ctx, "get")
	start := time.Now()
	defer func() { m.finish(span, "get", start, err) }()

	if err = m.ensureHydrated(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if ok && e.Expired(now) {
		ok = false
	}
	m.recordLookup(ok)
	if !ok {
		return nil, appErrors.NewNotFound("memory entry not found")
	}

	e.Touch(now)
	if storeErr := m.store.SaveEntry(ctx, m.systemID, e); storeErr != nil {
		m.logger.Warn("failed to persist access bookkeeping", zap.String("key", key), zap.Error(storeErr))
	}
	return e.Clone(), nil
}

func (m *indexedMemory) UpdateMemory(ctx context.Context, key string, update Update) (err error) {
	ctx, span := m.startSpan(ctx, "update")
	start := time.Now()
	defer func() { m.finish(span, "update", start, err) }()

	if err = m.ensureHydrated(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return appErrors.NewNotFound("memory entry not found")
	}

	contentChanged := update.Content != nil && *update.Content != e.Content
	updated := e.Clone()
	applyUpdate(updated, update)
	if err = m.store.SaveEntry(ctx, m.systemID, updated); err != nil {
		return appErrors.Wrap(err, "persist memory entry")
	}
	m.entries[key] = updated

	if contentChanged {
		if err = m.dropIndexFor(ctx, key); err != nil {
			return err
		}
		m.indexEntry(ctx, updated)
	}
	m.metrics.RecordInsertion(time.Since(start))
	m.refreshCounts()
	return nil
}

func (m *indexedMemory) RemoveMemory(ctx context.Context, key string) (err error) {
	ctx, span := m.startSpan(ctx, "remove")
	start := time.Now()
	defer func() { m.finish(span, "remove", start, err) }()

	if err = m.ensureHydrated(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return appErrors.NewNotFound("memory entry not found")
	}
	if err = m.dropIndexFor(ctx, key); err != nil {
		return err
	}
	if err = m.store.DeleteEntry(ctx, m.systemID, key); err != nil {
		return appErrors.Wrap(err, "delete memory entry")
	}
	delete(m.entries, key)
	m.refreshCounts()
	if m.collector != nil {
		m.collector.EntriesRemoved.WithLabelValues(string(m.backend)).Inc()
	}
	return nil
}

// dropIndexFor removes every index node derived from one entry. Called
// with m.mu held.
func (m *indexedMemory) dropIndexFor(ctx context.Context, key string) error {
	if err := m.store.DeleteIndexNodesByMemory(ctx, m.systemID, key); err != nil {
		return appErrors.Wrap(err, "delete index nodes")
	}
	for id, node := range m.nodes {
		if node.MemoryKey() == key {
			delete(m.nodes, id)
		}
	}
	return nil
}

func (m *indexedMemory) SearchMemories(ctx context.Context, query string, limit int) (results []SearchResult, err error) {
	ctx, span := m.startSpan(ctx, "search")
	start := time.Now()
	defer func() { m.finish(span, "search", start, err) }()

	if err = m.ensureHydrated(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.metrics.RecordRetrieval(time.Since(start)) }()

	now := time.Now()
	hits, strategyErr := m.searchByStrategy(ctx, query)
	if strategyErr != nil {
		m.logger.Warn("strategy search degraded to substring fallback",
			zap.String("strategy", string(m.cfg.Strategy)), zap.Error(strategyErr))
		results = m.substringFallback(query, now, limit)
	} else {
		results = m.groupHits(hits, now, limit)
	}

	for _, r := range results {
		if cached, ok := m.entries[r.Entry.Key]; ok {
			cached.Touch(now)
			if storeErr := m.store.SaveEntry(ctx, m.systemID, cached); storeErr != nil {
				m.logger.Warn("failed to persist access bookkeeping", zap.String("key", cached.Key), zap.Error(storeErr))
			}
			r.Entry.LastAccessed = cached.LastAccessed
			r.Entry.AccessCount = cached.AccessCount
		}
	}
	return results, nil
}

// nodeHit is one scored index node before grouping back to entries.
type nodeHit struct {
	node  *domain.IndexNode
	score float64
}

func (m *indexedMemory) searchByStrategy(ctx context.Context, query string) ([]nodeHit, error) {
	switch m.cfg.Strategy {
	case StrategyList:
		return m.searchList(ctx, query)
	case StrategyKeywordTable:
		return m.searchKeywordTable(query), nil
	case StrategyTree:
		return m.searchTree(ctx, query)
	default:
		return nil, appErrors.NewValidation("unknown retrieval strategy")
	}
}

// searchList scores every chunk node by cosine similarity to the query
// embedding.
func (m *indexedMemory) searchList(ctx context.Context, query string) ([]nodeHit, error) {
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits := make([]nodeHit, 0, len(m.nodes))
	for _, node := range m.nodes {
		if node.IsRoot || len(node.Embedding) == 0 {
			continue
		}
		score := services.CosineSimilarity(queryVec, node.Embedding)
		if score > 0 {
			hits = append(hits, nodeHit{node: node, score: score})
		}
	}
	return hits, nil
}

// searchKeywordTable scores nodes by the fraction of query keywords in
// their keyword set. An empty query keyword extraction yields nothing.
func (m *indexedMemory) searchKeywordTable(query string) []nodeHit {
	queryKeywords := m.analyzer.ExtractKeywords(query)
	if len(queryKeywords) == 0 {
		return nil
	}
	hits := make([]nodeHit, 0)
	for _, node := range m.nodes {
		if node.IsRoot {
			continue
		}
		keywords := node.Keywords()
		if len(keywords) == 0 {
			continue
		}
		set := make(map[string]bool, len(keywords))
		for _, kw := range keywords {
			set[kw] = true
		}
		score := services.KeywordOverlap(queryKeywords, set)
		if score > 0 {
			hits = append(hits, nodeHit{node: node, score: score})
		}
	}
	return hits
}

// searchTree scores roots by substring keyword presence, then their
// children by cosine similarity plus keyword bonus, combining both
// levels.
func (m *indexedMemory) searchTree(ctx context.Context, query string) ([]nodeHit, error) {
	queryKeywords := m.analyzer.ExtractKeywords(query)
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := make([]nodeHit, 0)
	for _, node := range m.nodes {
		if !node.IsRoot {
			continue
		}
		rootScore := substringBonus(node.Content, queryKeywords)
		if rootScore > 0 {
			hits = append(hits, nodeHit{node: node, score: rootScore})
		}
		for _, childID := range node.Children {
			child, ok := m.nodes[childID]
			if !ok {
				continue
			}
			score := services.CosineSimilarity(queryVec, child.Embedding) +
				substringBonus(child.Content, queryKeywords)
			if score > 0 {
				hits = append(hits, nodeHit{node: child, score: score})
			}
		}
	}
	return hits, nil
}

// substringBonus grants a small flat bonus for each keyword present as
// a substring.
func substringBonus(content string, keywords []string) float64 {
	lower := strings.ToLower(content)
	bonus := 0.0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			bonus += keywordBonus
		}
	}
	return bonus
}

// groupHits folds node-level hits back to their owning entries, keeping
// the maximum node score per entry and attaching matched chunk contents
// as excerpts.
func (m *indexedMemory) groupHits(hits []nodeHit, now time.Time, limit int) []SearchResult {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	entryScores := make(map[string]float64)
	excerpts := make(map[string][]string)
	for _, h := range hits {
		key := h.node.MemoryKey()
		if key == "" {
			continue
		}
		if h.score > entryScores[key] {
			entryScores[key] = h.score
		}
		if !h.node.IsRoot && len(excerpts[key]) < maxExcerpts {
			excerpts[key] = append(excerpts[key], h.node.Content)
		}
	}

	results := make([]SearchResult, 0, len(entryScores))
	for key, score := range entryScores {
		e, ok := m.entries[key]
		if !ok || e.Expired(now) || score < m.cfg.RelevanceThreshold {
			continue
		}
		results = append(results, SearchResult{
			Entry:   e.Clone(),
			Score:   score,
			Context: excerpts[key],
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit)
}

// substringFallback scans entry contents directly. It never fails for a
// well-formed query.
func (m *indexedMemory) substringFallback(query string, now time.Time, limit int) []SearchResult {
	terms := m.analyzer.Terms(query)
	if len(terms) == 0 {
		return nil
	}
	results := make([]SearchResult, 0)
	for _, e := range m.entries {
		if e.Expired(now) {
			continue
		}
		lower := strings.ToLower(e.Content)
		matched := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(terms)) * e.Importance
		results = append(results, SearchResult{Entry: e.Clone(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit)
}

func (m *indexedMemory) Clear(ctx context.Context) (err error) {
	ctx, span := m.startSpan(ctx, "clear")
	start := time.Now()
	defer func() { m.finish(span, "clear", start, err) }()

	if err = m.ensureHydrated(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err = m.store.DeleteIndexNodes(ctx, m.systemID); err != nil {
		return appErrors.Wrap(err, "clear index nodes")
	}
	if err = m.store.DeleteEntries(ctx, m.systemID); err != nil {
		return appErrors.Wrap(err, "clear memory entries")
	}
	m.entries = make(map[string]*domain.MemoryEntry)
	m.nodes = make(map[string]*domain.IndexNode)
	m.refreshCounts()
	return nil
}

func (m *indexedMemory) Metrics() domain.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics.Snapshot()
}

func (m *indexedMemory) UpdateConfig(patch ConfigPatch) error {
	return m.applyPatch(patch)
}
