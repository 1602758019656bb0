package memory

import (
	"context"
	"fmt"
	"math"
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

// depthDecay attenuates propagated scores per traversal hop. Tunable
// policy, not an invariant.
const depthDecay = 0.7

// graphMemory extracts concepts and relationships from content into a
// weighted directed graph and answers queries by bounded-depth
// traversal from seed nodes.
type graphMemory struct {
	core
	entries map[string]*domain.MemoryEntry
	nodes   map[string]*domain.GraphNode // keyed by NodeID
	edges   []*domain.GraphEdge

	concepts      provider.ConceptExtractor
	relationships provider.RelationshipExtractor
}

var _ Memory = (*graphMemory)(nil)

func newGraphMemory(cfg Config, opts Options) *graphMemory {
	g := &graphMemory{
		core:          newCore(BackendGraph, cfg, opts),
		entries:       make(map[string]*domain.MemoryEntry),
		nodes:         make(map[string]*domain.GraphNode),
		concepts:      opts.Concepts,
		relationships: opts.Relationships,
	}
	g.loadFn = g.load
	return g
}

func (g *graphMemory) load(ctx context.Context) error {
	entries, err := g.store.FindEntries(ctx, g.systemID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		g.entries[e.Key] = e
	}

	nodes, err := g.store.FindNodes(ctx, g.systemID)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		g.nodes[n.NodeID] = n
	}

	edges, err := g.store.FindEdges(ctx, g.systemID)
	if err != nil {
		return err
	}
	g.edges = edges

	g.refreshCounts()
	g.logger.Info("hydrated knowledge graph",
		zap.Int("entries", len(g.entries)),
		zap.Int("nodes", len(g.nodes)),
		zap.Int("edges", len(g.edges)))
	return nil
}

func (g *graphMemory) refreshCounts() {
	g.metrics.CacheSize = len(g.entries)
	g.metrics.NodeCount = len(g.nodes)
	g.metrics.EdgeCount = len(g.edges)
}

func (g *graphMemory) AddMemory(ctx context.Context, entry *domain.MemoryEntry) (err error) {
	ctx, span := g.startSpan(ctx, "add")
	start := time.Now()
	defer func() { g.finish(span, "add", start, err) }()

	if entry == nil || strings.TrimSpace(entry.Key) == "" {
		return appErrors.NewValidation("memory key is required")
	}
	if err = g.ensureHydrated(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e := entry.Clone()
	e.Importance = domain.ClampImportance(e.Importance)
	now := time.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Expires == nil && g.cfg.TTL > 0 {
		expiry := now.Add(g.cfg.TTL)
		e.Expires = &expiry
	}

	if err = g.store.SaveEntry(ctx, g.systemID, e); err != nil {
		return appErrors.Wrap(err, "persist memory entry")
	}
	g.entries[e.Key] = e

	// Extraction failures degrade: the entry is stored, just without a
	// graph, and search reaches it through the text fallback.
	g.extractGraph(ctx, e)

	g.metrics.RecordInsertion(time.Since(start))
	g.refreshCounts()
	if g.collector != nil {
		g.collector.EntriesAdded.WithLabelValues(string(g.backend)).Inc()
	}
	return nil
}

// extractGraph runs both collaborators over the entry and materializes
// nodes and edges. Called with g.mu held.
func (g *graphMemory) extractGraph(ctx context.Context, e *domain.MemoryEntry) {
	if g.concepts == nil {
		return
	}
	concepts, err := g.concepts.ExtractConcepts(ctx, e.Content)
	if err != nil {
		g.logger.Warn("concept extraction degraded", zap.String("key", e.Key), zap.Error(err))
		return
	}
	if len(concepts) == 0 {
		return
	}

	created := make([]*domain.GraphNode, 0, len(concepts))
	for _, c := range concepts {
		node := g.upsertConceptNode(ctx, c, e.Key)
		if node != nil {
			created = append(created, node)
		}
	}

	if g.relationships == nil || len(created) < 2 {
		return
	}
	rels, err := g.relationships.ExtractRelationships(ctx, concepts)
	if err != nil {
		g.logger.Warn("relationship extraction degraded", zap.String("key", e.Key), zap.Error(err))
		return
	}
	for _, r := range rels {
		source := g.resolveNodeRef(r.Source)
		target := g.resolveNodeRef(r.Target)
		if source == nil || target == nil || source.NodeID == target.NodeID {
			continue
		}
		edge := &domain.GraphEdge{
			SourceID:     source.NodeID,
			TargetID:     target.NodeID,
			Relationship: r.Relationship,
			Weight:       r.Weight,
		}
		if err := g.store.SaveEdge(ctx, g.systemID, edge); err != nil {
			g.logger.Warn("failed to persist edge", zap.Error(err))
			continue
		}
		g.upsertEdge(edge)
	}
}

// upsertConceptNode creates or reuses the node for an extracted concept
// and tags it with the owning memory key.
func (g *graphMemory) upsertConceptNode(ctx context.Context, c provider.Concept, memoryKey string) *domain.GraphNode {
	nodeID := conceptNodeID(c)
	node, ok := g.nodes[nodeID]
	if !ok {
		props := make(map[string]any, len(c.Properties))
		for k, v := range c.Properties {
			props[k] = v
		}
		node = &domain.GraphNode{
			ID:         uuid.NewString(),
			NodeID:     nodeID,
			Label:      c.Label,
			Properties: props,
		}
	}
	node.AddMemoryKey(memoryKey)
	if err := g.store.SaveNode(ctx, g.systemID, node); err != nil {
		g.logger.Warn("failed to persist node", zap.String("node_id", nodeID), zap.Error(err))
		return nil
	}
	g.nodes[nodeID] = node
	return node
}

// conceptNodeID derives the stable business key for a concept:
// "Label:Name", with a generated suffix when the name is absent.
func conceptNodeID(c provider.Concept) string {
	name := c.Name()
	if name == "" {
		name = uuid.NewString()
	}
	return c.Label + ":" + name
}

// resolveNodeRef matches a collaborator "Label:name" reference against
// known nodes, case-insensitively.
func (g *graphMemory) resolveNodeRef(ref string) *domain.GraphNode {
	for _, node := range g.nodes {
		if strings.EqualFold(node.NodeID, ref) {
			return node
		}
	}
	// Tolerate bare-name references.
	for _, node := range g.nodes {
		if name := node.Name(); name != "" && strings.EqualFold(name, ref) {
			return node
		}
	}
	return nil
}

func (g *graphMemory) upsertEdge(edge *domain.GraphEdge) {
	for i, existing := range g.edges {
		if existing.SourceID == edge.SourceID && existing.TargetID == edge.TargetID &&
			existing.Relationship == edge.Relationship {
			g.edges[i] = edge
			return
		}
	}
	g.edges = append(g.edges, edge)
}

func (g *graphMemory) GetMemory(ctx context.Context, key string) (entry *domain.MemoryEntry, err error) {
	ctx, span := g.startSpan(ctx, "get")
	start := time.Now()
	defer func() { g.finish(span, "get", start, err) }()

	if err = g.ensureHydrated(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	e, ok := g.entries[key]
	if ok && e.Expired(now) {
		ok = false
	}
	g.recordLookup(ok)
	if !ok {
		return nil, appErrors.NewNotFound("memory entry not found")
	}

	e.Touch(now)
	if storeErr := g.store.SaveEntry(ctx, g.systemID, e); storeErr != nil {
		g.logger.Warn("failed to persist access bookkeeping", zap.String("key", key), zap.Error(storeErr))
	}
	return e.Clone(), nil
}

func (g *graphMemory) UpdateMemory(ctx context.Context, key string, update Update) (err error) {
	ctx, span := g.startSpan(ctx, "update")
	start := time.Now()
	defer func() { g.finish(span, "update", start, err) }()

	if err = g.ensureHydrated(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		return appErrors.NewNotFound("memory entry not found")
	}

	contentChanged := update.Content != nil && *update.Content != e.Content
	if contentChanged {
		if err = g.teardownGraph(ctx, key); err != nil {
			return err
		}
	}

	updated := e.Clone()
	applyUpdate(updated, update)
	if err = g.store.SaveEntry(ctx, g.systemID, updated); err != nil {
		return appErrors.Wrap(err, "persist memory entry")
	}
	g.entries[key] = updated

	if contentChanged {
		g.extractGraph(ctx, updated)
	}
	g.metrics.RecordInsertion(time.Since(start))
	g.refreshCounts()
	return nil
}

func (g *graphMemory) RemoveMemory(ctx context.Context, key string) (err error) {
	ctx, span := g.startSpan(ctx, "remove")
	start := time.Now()
	defer func() { g.finish(span, "remove", start, err) }()

	if err = g.ensureHydrated(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entries[key]; !ok {
		return appErrors.NewNotFound("memory entry not found")
	}
	if err = g.teardownGraph(ctx, key); err != nil {
		return err
	}
	if err = g.store.DeleteEntry(ctx, g.systemID, key); err != nil {
		return appErrors.Wrap(err, "delete memory entry")
	}
	delete(g.entries, key)
	g.refreshCounts()
	if g.collector != nil {
		g.collector.EntriesRemoved.WithLabelValues(string(g.backend)).Inc()
	}
	return nil
}

// teardownGraph performs the reference-counted cleanup for one memory:
// nodes solely owned by it are deleted along with their edges; shared
// nodes just lose the reference. Called with g.mu held.
func (g *graphMemory) teardownGraph(ctx context.Context, key string) error {
	for nodeID, node := range g.nodes {
		if !node.HasMemoryKey(key) {
			continue
		}
		if node.RemoveMemoryKey(key) > 0 {
			if err := g.store.SaveNode(ctx, g.systemID, node); err != nil {
				return appErrors.Wrap(err, "persist node reference removal")
			}
			continue
		}
		if err := g.store.DeleteNode(ctx, g.systemID, nodeID); err != nil {
			return appErrors.Wrap(err, "delete orphaned node")
		}
		if err := g.store.DeleteEdgesByNode(ctx, g.systemID, nodeID); err != nil {
			return appErrors.Wrap(err, "delete orphaned edges")
		}
		delete(g.nodes, nodeID)
		g.dropEdgesTouching(nodeID)
	}
	return nil
}

func (g *graphMemory) dropEdgesTouching(nodeID string) {
	kept := g.edges[:0]
	for _, edge := range g.edges {
		if edge.SourceID != nodeID && edge.TargetID != nodeID {
			kept = append(kept, edge)
		}
	}
	g.edges = kept
}

func (g *graphMemory) SearchMemories(ctx context.Context, query string, limit int) (results []SearchResult, err error) {
	ctx, span := g.startSpan(ctx, "search")
	start := time.Now()
	defer func() { g.finish(span, "search", start, err) }()

	if err = g.ensureHydrated(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() { g.metrics.RecordRetrieval(time.Since(start)) }()

	now := time.Now()
	seeds := g.seedNodes(ctx, query)
	if len(seeds) == 0 {
		results = g.textFallback(query, now, limit)
	} else {
		results = g.traverse(seeds, now, limit)
	}

	for _, r := range results {
		if cached, ok := g.entries[r.Entry.Key]; ok {
			cached.Touch(now)
			if storeErr := g.store.SaveEntry(ctx, g.systemID, cached); storeErr != nil {
				g.logger.Warn("failed to persist access bookkeeping", zap.String("key", cached.Key), zap.Error(storeErr))
			}
			r.Entry.LastAccessed = cached.LastAccessed
			r.Entry.AccessCount = cached.AccessCount
		}
	}
	return results, nil
}

// seedNodes translates the query into starting nodes by extracting
// concepts and matching them case-insensitively against node labels
// and names.
func (g *graphMemory) seedNodes(ctx context.Context, query string) map[string]float64 {
	if g.concepts == nil || len(g.nodes) == 0 {
		return nil
	}
	concepts, err := g.concepts.ExtractConcepts(ctx, query)
	if err != nil {
		g.logger.Warn("query concept extraction degraded", zap.Error(err))
		return nil
	}

	seeds := make(map[string]float64)
	for _, c := range concepts {
		name := c.Name()
		for nodeID, node := range g.nodes {
			if name != "" && strings.EqualFold(node.Name(), name) {
				seeds[nodeID] = 1.0
				continue
			}
			if name == "" && strings.EqualFold(node.Label, c.Label) {
				seeds[nodeID] = 1.0
			}
		}
	}
	return seeds
}

// traverse runs the bounded breadth-first propagation and aggregates
// node scores back to memory entries.
func (g *graphMemory) traverse(seeds map[string]float64, now time.Time, limit int) []SearchResult {
	scores := make(map[string]float64, len(seeds))
	for nodeID, s := range seeds {
		scores[nodeID] = s
	}

	frontier := seeds
	for depth := 1; depth <= g.cfg.RetrievalDepth && len(frontier) > 0; depth++ {
		decay := math.Pow(depthDecay, float64(depth))
		next := make(map[string]float64)
		for nodeID, nodeScore := range frontier {
			for _, edge := range g.edges {
				if edge.Weight < g.cfg.MinEdgeWeight {
					continue
				}
				var neighbor string
				switch nodeID {
				case edge.SourceID:
					neighbor = edge.TargetID
				case edge.TargetID:
					neighbor = edge.SourceID
				default:
					continue
				}
				propagated := nodeScore * edge.Weight * decay
				if propagated < g.cfg.MinNodeWeight {
					continue
				}
				if propagated > scores[neighbor] {
					scores[neighbor] = propagated
					next[neighbor] = propagated
				}
			}
		}
		frontier = next
	}

	// Each visited node contributes its score to every memory it
	// references; a memory keeps the best score across contributors.
	entryScores := make(map[string]float64)
	entryContext := make(map[string][]string)
	for nodeID, score := range scores {
		node, ok := g.nodes[nodeID]
		if !ok {
			continue
		}
		desc := describeNode(node)
		for _, key := range node.MemoryKeys() {
			if score > entryScores[key] {
				entryScores[key] = score
			}
			entryContext[key] = append(entryContext[key], desc)
		}
	}

	results := make([]SearchResult, 0, len(entryScores))
	for key, score := range entryScores {
		e, ok := g.entries[key]
		if !ok || e.Expired(now) || score < g.cfg.RelevanceThreshold {
			continue
		}
		results = append(results, SearchResult{
			Entry:   e.Clone(),
			Score:   score,
			Context: entryContext[key],
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit)
}

// textFallback is the keyword search used when no graph seeds match.
func (g *graphMemory) textFallback(query string, now time.Time, limit int) []SearchResult {
	terms := g.analyzer.Terms(query)
	if len(terms) == 0 {
		return nil
	}
	results := make([]SearchResult, 0)
	for _, e := range g.entries {
		if e.Expired(now) {
			continue
		}
		score := services.KeywordOverlap(terms, g.analyzer.TokenizeWords(e.Content)) * e.Importance
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{Entry: e.Clone(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit)
}

func describeNode(node *domain.GraphNode) string {
	if name := node.Name(); name != "" {
		return fmt.Sprintf("%s: %s", node.Label, name)
	}
	return node.Label
}

func (g *graphMemory) Clear(ctx context.Context) (err error) {
	ctx, span := g.startSpan(ctx, "clear")
	start := time.Now()
	defer func() { g.finish(span, "clear", start, err) }()

	if err = g.ensureHydrated(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err = g.store.DeleteEdges(ctx, g.systemID); err != nil {
		return appErrors.Wrap(err, "clear edges")
	}
	if err = g.store.DeleteNodes(ctx, g.systemID); err != nil {
		return appErrors.Wrap(err, "clear nodes")
	}
	if err = g.store.DeleteEntries(ctx, g.systemID); err != nil {
		return appErrors.Wrap(err, "clear memory entries")
	}
	g.entries = make(map[string]*domain.MemoryEntry)
	g.nodes = make(map[string]*domain.GraphNode)
	g.edges = nil
	g.refreshCounts()
	return nil
}

func (g *graphMemory) Metrics() domain.Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.Snapshot()
}

func (g *graphMemory) UpdateConfig(patch ConfigPatch) error {
	return g.applyPatch(patch)
}
