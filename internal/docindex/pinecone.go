package docindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig selects a serverless index and namespace
type PineconeConfig struct {
	APIKey    string
	IndexName string
	Namespace string
}

// PineconeStore keeps chunk vectors in a Pinecone index. The index host is
// resolved and the data-plane connection opened on first use.
type PineconeStore struct {
	client    *pinecone.Client
	indexName string
	namespace string

	mu   sync.Mutex
	conn *pinecone.IndexConnection
}

// NewPineconeStore creates a Pinecone-backed store
func NewPineconeStore(cfg PineconeConfig) (*PineconeStore, error) {
	if cfg.IndexName == "" {
		return nil, &domain.ConfigurationError{Field: "retrieval.pinecone.index", Message: "index name is required"}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "nahw-textbook"
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create pinecone client: %w", err)
	}

	return &PineconeStore{client: pc, indexName: cfg.IndexName, namespace: cfg.Namespace}, nil
}

func (s *PineconeStore) connection(ctx context.Context) (*pinecone.IndexConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	desc, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return nil, fmt.Errorf("describe index %s: %w", s.indexName, err)
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{
		Host:      desc.Host,
		Namespace: s.namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect index %s: %w", s.indexName, err)
	}
	s.conn = conn
	return conn, nil
}

// Nearest queries the index by vector values and returns matches carrying
// chunk content in their metadata.
func (s *PineconeStore) Nearest(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, s.unavailable(err)
	}

	res, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vec,
		TopK:            uint32(k),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, s.unavailable(fmt.Errorf("query: %w", err))
	}

	results := make([]SearchResult, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil || m.Vector.Metadata == nil {
			continue
		}
		md := m.Vector.Metadata.AsMap()
		content, _ := md["content"].(string)
		if content == "" {
			continue
		}
		docID, _ := md["document_id"].(string)
		results = append(results, SearchResult{
			ChunkID:    m.Vector.Id,
			DocumentID: docID,
			Content:    content,
			Score:      m.Score,
		})
	}
	return results, nil
}

// HasDocument checks for any vector under the document's ID prefix
func (s *PineconeStore) HasDocument(ctx context.Context, id string) (bool, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return false, err
	}

	prefix := vectorPrefix(id)
	limit := uint32(1)
	res, err := conn.ListVectors(ctx, &pinecone.ListVectorsRequest{Prefix: &prefix, Limit: &limit})
	if err != nil {
		return false, fmt.Errorf("list vectors: %w", err)
	}
	return len(res.VectorIds) > 0, nil
}

// WriteDocument upserts one vector per chunk, IDs "<document>#<position>".
func (s *PineconeStore) WriteDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}

	vectors := make([]*pinecone.Vector, 0, len(chunks))
	for _, c := range chunks {
		md, err := structpb.NewStruct(map[string]any{
			"document_id": doc.ID,
			"path":        doc.Path,
			"title":       doc.Title,
			"position":    c.Position,
			"content":     c.Content,
		})
		if err != nil {
			return fmt.Errorf("chunk %d metadata: %w", c.Position, err)
		}
		values := c.Embedding
		vectors = append(vectors, &pinecone.Vector{
			Id:       fmt.Sprintf("%s%d", vectorPrefix(doc.ID), c.Position),
			Values:   &values,
			Metadata: md,
		})
	}

	const batchSize = 50
	for start := 0; start < len(vectors); start += batchSize {
		end := min(start+batchSize, len(vectors))
		if _, err := conn.UpsertVectors(ctx, vectors[start:end]); err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}
	}
	return nil
}

// Close releases the data-plane connection
func (s *PineconeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *PineconeStore) unavailable(err error) error {
	return &domain.RetrievalUnavailableError{Source: "pinecone:" + s.indexName, Err: err}
}

func vectorPrefix(documentID string) string {
	return documentID + "#"
}
