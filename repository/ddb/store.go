// Package ddb implements the repository contracts on a DynamoDB single
// table. This is the only package that knows DynamoDB specifics.
//
// Layout: PK = "SYSTEM#<id>", SK discriminates the record kind
// (METADATA, ENTRY#<key>, NODE#<id>, EDGE#<src>#<tgt>#<rel>,
// INDEX#<id>). GSI1 maps (owner, name) back to the system record.
// Every write is a PutItem upsert keyed by the business key.
package ddb

import (
	"context"
	"fmt"
	"time"

	"memorybank/domain"
	appErrors "memorybank/pkg/errors"
	"memorybank/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	skMetadata    = "METADATA"
	skEntryPrefix = "ENTRY#"
	skNodePrefix  = "NODE#"
	skEdgePrefix  = "EDGE#"
	skIndexPrefix = "INDEX#"

	batchDeleteSize = 25
)

// Store is the DynamoDB-backed durable store.
type Store struct {
	client    *dynamodb.Client
	tableName string
	indexName string
	logger    *zap.Logger
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a DynamoDB store over the given table. indexName is the
// GSI resolving (owner, name) to a system record.
func NewStore(client *dynamodb.Client, tableName, indexName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, tableName: tableName, indexName: indexName, logger: logger}
}

// NewClient builds a DynamoDB client from the ambient AWS configuration.
func NewClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to load AWS config")
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func systemPK(systemID string) string {
	return fmt.Sprintf("SYSTEM#%s", systemID)
}

// ddbSystem is the storage shape of a system record.
type ddbSystem struct {
	PK        string         `dynamodbav:"PK"`
	SK        string         `dynamodbav:"SK"`
	GSI1PK    string         `dynamodbav:"GSI1PK"`
	GSI1SK    string         `dynamodbav:"GSI1SK"`
	SystemID  string         `dynamodbav:"SystemID"`
	Owner     string         `dynamodbav:"Owner"`
	Name      string         `dynamodbav:"Name"`
	Backend   string         `dynamodbav:"Backend"`
	Config    map[string]any `dynamodbav:"Config,omitempty"`
	Metrics   domain.Metrics `dynamodbav:"Metrics"`
	CreatedAt string         `dynamodbav:"CreatedAt"`
	UpdatedAt string         `dynamodbav:"UpdatedAt"`
}

type ddbEntry struct {
	PK           string         `dynamodbav:"PK"`
	SK           string         `dynamodbav:"SK"`
	Key          string         `dynamodbav:"EntryKey"`
	Content      string         `dynamodbav:"Content"`
	Metadata     map[string]any `dynamodbav:"Metadata,omitempty"`
	Importance   float64        `dynamodbav:"Importance"`
	Timestamp    string         `dynamodbav:"Timestamp"`
	LastAccessed string         `dynamodbav:"LastAccessed,omitempty"`
	AccessCount  int            `dynamodbav:"AccessCount"`
	Expires      string         `dynamodbav:"Expires,omitempty"`
}

type ddbNode struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	StorageID  string         `dynamodbav:"StorageID"`
	NodeID     string         `dynamodbav:"NodeID"`
	Label      string         `dynamodbav:"Label"`
	Properties map[string]any `dynamodbav:"Properties,omitempty"`
	Embedding  []float32      `dynamodbav:"Embedding,omitempty"`
}

type ddbEdge struct {
	PK           string         `dynamodbav:"PK"`
	SK           string         `dynamodbav:"SK"`
	SourceID     string         `dynamodbav:"SourceID"`
	TargetID     string         `dynamodbav:"TargetID"`
	Relationship string         `dynamodbav:"Relationship"`
	Weight       float64        `dynamodbav:"Weight"`
	Properties   map[string]any `dynamodbav:"Properties,omitempty"`
}

type ddbIndexNode struct {
	PK        string         `dynamodbav:"PK"`
	SK        string         `dynamodbav:"SK"`
	NodeID    string         `dynamodbav:"NodeID"`
	Content   string         `dynamodbav:"Content"`
	Embedding []float32      `dynamodbav:"Embedding,omitempty"`
	Children  []string       `dynamodbav:"Children,omitempty"`
	Parent    string         `dynamodbav:"Parent,omitempty"`
	IsRoot    bool           `dynamodbav:"IsRoot"`
	Metadata  map[string]any `dynamodbav:"Metadata,omitempty"`
}

// SaveSystem upserts the system metadata record.
func (s *Store) SaveSystem(ctx context.Context, rec *repository.SystemRecord) error {
	item, err := attributevalue.MarshalMap(ddbSystem{
		PK:        systemPK(rec.ID),
		SK:        skMetadata,
		GSI1PK:    fmt.Sprintf("OWNER#%s", rec.Owner),
		GSI1SK:    fmt.Sprintf("NAME#%s", rec.Name),
		SystemID:  rec.ID,
		Owner:     rec.Owner,
		Name:      rec.Name,
		Backend:   rec.Backend,
		Config:    rec.Config,
		Metrics:   rec.Metrics,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal system record")
	}
	return s.put(ctx, item)
}

// FindSystem resolves a system record via the owner/name GSI.
func (s *Store) FindSystem(ctx context.Context, owner, name string) (*repository.SystemRecord, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("OWNER#%s", owner))).
		And(expression.Key("GSI1SK").Equal(expression.Value(fmt.Sprintf("NAME#%s", name))))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to build system query")
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, "system query failed")
	}
	if len(out.Items) == 0 {
		return nil, appErrors.NewNotFound("memory system not found")
	}

	var item ddbSystem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal system record")
	}

	rec := &repository.SystemRecord{
		ID:      item.SystemID,
		Owner:   item.Owner,
		Name:    item.Name,
		Backend: item.Backend,
		Config:  item.Config,
		Metrics: item.Metrics,
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, item.CreatedAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return rec, nil
}

// DeleteSystem removes the system record and every dependent item.
func (s *Store) DeleteSystem(ctx context.Context, systemID string) error {
	return s.deleteByPrefix(ctx, systemID, "")
}

// SaveEntry upserts a memory entry item.
func (s *Store) SaveEntry(ctx context.Context, systemID string, entry *domain.MemoryEntry) error {
	rec := ddbEntry{
		PK:          systemPK(systemID),
		SK:          skEntryPrefix + entry.Key,
		Key:         entry.Key,
		Content:     entry.Content,
		Metadata:    entry.Metadata,
		Importance:  entry.Importance,
		Timestamp:   entry.Timestamp.Format(time.RFC3339Nano),
		AccessCount: entry.AccessCount,
	}
	if entry.LastAccessed != nil {
		rec.LastAccessed = entry.LastAccessed.Format(time.RFC3339Nano)
	}
	if entry.Expires != nil {
		rec.Expires = entry.Expires.Format(time.RFC3339Nano)
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal entry item")
	}
	return s.put(ctx, item)
}

// FindEntry retrieves one entry by key.
func (s *Store) FindEntry(ctx context.Context, systemID, key string) (*domain.MemoryEntry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: systemPK(systemID)},
			"SK": &types.AttributeValueMemberS{Value: skEntryPrefix + key},
		},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, "entry lookup failed")
	}
	if out.Item == nil {
		return nil, appErrors.NewNotFound("memory entry not found")
	}
	return unmarshalEntry(out.Item)
}

// FindEntries lists every entry for a system.
func (s *Store) FindEntries(ctx context.Context, systemID string) ([]*domain.MemoryEntry, error) {
	items, err := s.queryPrefix(ctx, systemID, skEntryPrefix)
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.MemoryEntry, 0, len(items))
	for _, item := range items {
		entry, err := unmarshalEntry(item)
		if err != nil {
			s.logger.Warn("skipping malformed entry item", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteEntry removes one entry item.
func (s *Store) DeleteEntry(ctx context.Context, systemID, key string) error {
	return s.deleteItem(ctx, systemID, skEntryPrefix+key)
}

// DeleteEntries removes all entry items for a system.
func (s *Store) DeleteEntries(ctx context.Context, systemID string) error {
	return s.deleteByPrefix(ctx, systemID, skEntryPrefix)
}

// SaveNode upserts a graph node item keyed by its business node id.
func (s *Store) SaveNode(ctx context.Context, systemID string, node *domain.GraphNode) error {
	item, err := attributevalue.MarshalMap(ddbNode{
		PK:         systemPK(systemID),
		SK:         skNodePrefix + node.NodeID,
		StorageID:  node.ID,
		NodeID:     node.NodeID,
		Label:      node.Label,
		Properties: node.Properties,
		Embedding:  node.Embedding,
	})
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal node item")
	}
	return s.put(ctx, item)
}

// FindNodes lists every graph node for a system.
func (s *Store) FindNodes(ctx context.Context, systemID string) ([]*domain.GraphNode, error) {
	items, err := s.queryPrefix(ctx, systemID, skNodePrefix)
	if err != nil {
		return nil, err
	}

	nodes := make([]*domain.GraphNode, 0, len(items))
	for _, item := range items {
		var rec ddbNode
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			s.logger.Warn("skipping malformed node item", zap.Error(err))
			continue
		}
		nodes = append(nodes, &domain.GraphNode{
			ID:         rec.StorageID,
			NodeID:     rec.NodeID,
			Label:      rec.Label,
			Properties: rec.Properties,
			Embedding:  rec.Embedding,
		})
	}
	return nodes, nil
}

// DeleteNode removes one node item.
func (s *Store) DeleteNode(ctx context.Context, systemID, nodeID string) error {
	return s.deleteItem(ctx, systemID, skNodePrefix+nodeID)
}

// DeleteNodes removes all node items for a system.
func (s *Store) DeleteNodes(ctx context.Context, systemID string) error {
	return s.deleteByPrefix(ctx, systemID, skNodePrefix)
}

// SaveEdge upserts an edge item keyed by source, target and relationship.
func (s *Store) SaveEdge(ctx context.Context, systemID string, edge *domain.GraphEdge) error {
	item, err := attributevalue.MarshalMap(ddbEdge{
		PK:           systemPK(systemID),
		SK:           fmt.Sprintf("%s%s#%s#%s", skEdgePrefix, edge.SourceID, edge.TargetID, edge.Relationship),
		SourceID:     edge.SourceID,
		TargetID:     edge.TargetID,
		Relationship: edge.Relationship,
		Weight:       edge.Weight,
		Properties:   edge.Properties,
	})
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal edge item")
	}
	return s.put(ctx, item)
}

// FindEdges lists every edge for a system.
func (s *Store) FindEdges(ctx context.Context, systemID string) ([]*domain.GraphEdge, error) {
	items, err := s.queryPrefix(ctx, systemID, skEdgePrefix)
	if err != nil {
		return nil, err
	}

	edges := make([]*domain.GraphEdge, 0, len(items))
	for _, item := range items {
		var rec ddbEdge
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			s.logger.Warn("skipping malformed edge item", zap.Error(err))
			continue
		}
		edges = append(edges, &domain.GraphEdge{
			SourceID:     rec.SourceID,
			TargetID:     rec.TargetID,
			Relationship: rec.Relationship,
			Weight:       rec.Weight,
			Properties:   rec.Properties,
		})
	}
	return edges, nil
}

// DeleteEdgesByNode removes every edge touching the given node.
func (s *Store) DeleteEdgesByNode(ctx context.Context, systemID, nodeID string) error {
	items, err := s.queryPrefix(ctx, systemID, skEdgePrefix)
	if err != nil {
		return err
	}

	var keys []map[string]types.AttributeValue
	for _, item := range items {
		var rec ddbEdge
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		if rec.SourceID == nodeID || rec.TargetID == nodeID {
			keys = append(keys, map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: rec.PK},
				"SK": &types.AttributeValueMemberS{Value: rec.SK},
			})
		}
	}
	return s.batchDelete(ctx, keys)
}

// DeleteEdges removes all edge items for a system.
func (s *Store) DeleteEdges(ctx context.Context, systemID string) error {
	return s.deleteByPrefix(ctx, systemID, skEdgePrefix)
}

// SaveIndexNode upserts a chunk index item.
func (s *Store) SaveIndexNode(ctx context.Context, systemID string, node *domain.IndexNode) error {
	item, err := attributevalue.MarshalMap(ddbIndexNode{
		PK:        systemPK(systemID),
		SK:        skIndexPrefix + node.ID,
		NodeID:    node.ID,
		Content:   node.Content,
		Embedding: node.Embedding,
		Children:  node.Children,
		Parent:    node.Parent,
		IsRoot:    node.IsRoot,
		Metadata:  node.Metadata,
	})
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal index item")
	}
	return s.put(ctx, item)
}

// FindIndexNodes lists every index node for a system.
func (s *Store) FindIndexNodes(ctx context.Context, systemID string) ([]*domain.IndexNode, error) {
	items, err := s.queryPrefix(ctx, systemID, skIndexPrefix)
	if err != nil {
		return nil, err
	}

	nodes := make([]*domain.IndexNode, 0, len(items))
	for _, item := range items {
		var rec ddbIndexNode
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			s.logger.Warn("skipping malformed index item", zap.Error(err))
			continue
		}
		nodes = append(nodes, &domain.IndexNode{
			ID:        rec.NodeID,
			Content:   rec.Content,
			Embedding: rec.Embedding,
			Children:  rec.Children,
			Parent:    rec.Parent,
			IsRoot:    rec.IsRoot,
			Metadata:  rec.Metadata,
		})
	}
	return nodes, nil
}

// DeleteIndexNodesByMemory removes every index node derived from one entry.
func (s *Store) DeleteIndexNodesByMemory(ctx context.Context, systemID, memoryKey string) error {
	items, err := s.queryPrefix(ctx, systemID, skIndexPrefix)
	if err != nil {
		return err
	}

	var keys []map[string]types.AttributeValue
	for _, item := range items {
		var rec ddbIndexNode
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		if key, ok := rec.Metadata[domain.MetaMemoryKey].(string); ok && key == memoryKey {
			keys = append(keys, map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: rec.PK},
				"SK": &types.AttributeValueMemberS{Value: rec.SK},
			})
		}
	}
	return s.batchDelete(ctx, keys)
}

// DeleteIndexNodes removes all index items for a system.
func (s *Store) DeleteIndexNodes(ctx context.Context, systemID string) error {
	return s.deleteByPrefix(ctx, systemID, skIndexPrefix)
}

func (s *Store) put(ctx context.Context, item map[string]types.AttributeValue) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return appErrors.Wrap(err, "dynamodb put failed")
	}
	return nil
}

func (s *Store) deleteItem(ctx context.Context, systemID, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: systemPK(systemID)},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return appErrors.Wrap(err, "dynamodb delete failed")
	}
	return nil
}

// queryPrefix pages through all items under a PK whose SK carries the
// given prefix. An empty prefix returns the whole partition.
func (s *Store) queryPrefix(ctx context.Context, systemID, prefix string) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(systemPK(systemID)))
	if prefix != "" {
		keyCond = keyCond.And(expression.Key("SK").BeginsWith(prefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to build prefix query")
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, "prefix query failed")
		}
		items = append(items, out.Items...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return items, nil
}

func (s *Store) deleteByPrefix(ctx context.Context, systemID, prefix string) error {
	items, err := s.queryPrefix(ctx, systemID, prefix)
	if err != nil {
		return err
	}

	keys := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		keys = append(keys, map[string]types.AttributeValue{
			"PK": item["PK"],
			"SK": item["SK"],
		})
	}
	return s.batchDelete(ctx, keys)
}

func (s *Store) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	for start := 0; start < len(keys); start += batchDeleteSize {
		end := start + batchDeleteSize
		if end > len(keys) {
			end = len(keys)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
		})
		if err != nil {
			return appErrors.Wrap(err, "batch delete failed")
		}
	}
	return nil
}

func unmarshalEntry(item map[string]types.AttributeValue) (*domain.MemoryEntry, error) {
	var rec ddbEntry
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal entry item")
	}

	entry := &domain.MemoryEntry{
		Key:         rec.Key,
		Content:     rec.Content,
		Metadata:    rec.Metadata,
		Importance:  rec.Importance,
		AccessCount: rec.AccessCount,
	}
	entry.Timestamp, _ = time.Parse(time.RFC3339Nano, rec.Timestamp)
	if rec.LastAccessed != "" {
		if t, err := time.Parse(time.RFC3339Nano, rec.LastAccessed); err == nil {
			entry.LastAccessed = &t
		}
	}
	if rec.Expires != "" {
		if t, err := time.Parse(time.RFC3339Nano, rec.Expires); err == nil {
			entry.Expires = &t
		}
	}
	return entry, nil
}
