package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/tunogya/runqa/pkg/model"
)

// DefaultCollectionName is the default collection for run fingerprints
const DefaultCollectionName = "run_fingerprints"

// Field names of the fingerprint collection
const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldRun       = "run"
	fieldVerdict   = "verdict"
	fieldLayout    = "layout"
	fieldPassID    = "pass_id"
)

// CollectionConfig holds configuration for creating a collection
type CollectionConfig struct {
	Name      string
	Dimension int // number of metrics plus one
	Shards    int
}

// DefaultCollectionConfig returns default collection configuration for dim-dimensional fingerprints
func DefaultCollectionConfig(dim int) CollectionConfig {
	return CollectionConfig{
		Name:      DefaultCollectionName,
		Dimension: dim,
		Shards:    1,
	}
}

// CreateCollection creates the fingerprint collection if it does not exist
func (c *Client) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "Per-run anomaly fingerprints for similar-run search",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", cfg.Dimension),
				},
			},
			{
				Name:     fieldRun,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldVerdict,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "16",
				},
			},
			{
				Name:     fieldLayout,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     fieldPassID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
		},
	}

	if err := c.conn.CreateCollection(ctx, schema, int32(cfg.Shards)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if err := c.CreateIndex(ctx, cfg.Name, fieldEmbedding); err != nil {
		return fmt.Errorf("failed to index collection: %w", err)
	}

	return nil
}

// InsertBatch upserts run fingerprints of one pass. All fingerprints must share one layout.
func (c *Client) InsertBatch(ctx context.Context, collectionName, passID string, fps []model.RunFingerprint) error {
	if len(fps) == 0 {
		return nil
	}

	ids := make([]string, len(fps))
	embeddings := make([][]float32, len(fps))
	runs := make([]int64, len(fps))
	verdicts := make([]string, len(fps))
	layouts := make([]string, len(fps))
	passIDs := make([]string, len(fps))

	dim := fps[0].Embedding.Dim()
	for i, fp := range fps {
		if fp.Embedding.Dim() != dim {
			return fmt.Errorf("fingerprint for run %d has dim %d, want %d", fp.Run, fp.Embedding.Dim(), dim)
		}
		ids[i] = fp.ID
		embeddings[i] = fp.Embedding
		runs[i] = int64(fp.Run)
		verdicts[i] = string(fp.Verdict)
		layouts[i] = fp.Layout
		passIDs[i] = passID
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, dim, embeddings),
		entity.NewColumnInt64(fieldRun, runs),
		entity.NewColumnVarChar(fieldVerdict, verdicts),
		entity.NewColumnVarChar(fieldLayout, layouts),
		entity.NewColumnVarChar(fieldPassID, passIDs),
	}

	if _, err := c.conn.Upsert(ctx, collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}

	return nil
}

// SearchResult represents a single search result
type SearchResult struct {
	ID      string
	Score   float32
	Run     int
	Verdict model.Verdict
	Layout  string
	PassID  string
}

// LayoutFilter restricts a search to fingerprints built from the same metric list
func LayoutFilter(layout string) string {
	return fmt.Sprintf("%s == \"%s\"", fieldLayout, layout)
}

// Search performs a TopK cosine similarity search
func (c *Client) Search(ctx context.Context, collectionName string, embedding model.Fingerprint, filter string, topK int) ([]SearchResult, error) {
	vectors := []entity.Vector{entity.FloatVector(embedding)}

	sp, err := entity.NewIndexIvfFlatSearchParam(16) // nprobe
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	outputFields := []string{fieldID, fieldRun, fieldVerdict, fieldLayout, fieldPassID}

	results, err := c.conn.Search(
		ctx,
		collectionName,
		nil, // partitions
		filter,
		outputFields,
		vectors,
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	searchResults := make([]SearchResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		result := SearchResult{
			Score: results[0].Scores[i],
		}

		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *entity.ColumnVarChar:
				val, _ := col.ValueByIdx(i)
				switch col.Name() {
				case fieldID:
					result.ID = val
				case fieldVerdict:
					result.Verdict = model.Verdict(val)
				case fieldLayout:
					result.Layout = val
				case fieldPassID:
					result.PassID = val
				}
			case *entity.ColumnInt64:
				if col.Name() == fieldRun {
					val, _ := col.ValueByIdx(i)
					result.Run = int(val)
				}
			}
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Flush flushes the collection to ensure data persistence
func (c *Client) Flush(ctx context.Context, collectionName string) error {
	return c.conn.Flush(ctx, collectionName, false)
}
