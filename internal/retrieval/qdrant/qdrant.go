// Package qdrant implements the semantic search path against a Qdrant
// collection over gRPC.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/selimacar/sage/internal/retrieval"
)

// Payload keys written by the ingestion pipeline and read back here.
const (
	payloadContent   = "content"
	payloadDocID     = "document_id"
	payloadDocTitle  = "document_title"
	payloadPrincipal = "principal_id"
)

// Store implements retrieval.VectorStore using Qdrant.
type Store struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection string
}

// New connects to a Qdrant instance and binds it to one collection.
func New(host string, port int, collection string) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: collection,
	}, nil
}

// Search runs a filtered similarity query. When params.Filter is set only
// global points and points scoped to the principal come back; the filter is
// enforced server side so restricted chunks never cross the wire.
func (s *Store) Search(ctx context.Context, vector []float32, params retrieval.SearchParams) ([]retrieval.SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(params.Limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if params.ScoreThreshold > 0 {
		threshold := float32(params.ScoreThreshold)
		req.ScoreThreshold = &threshold
	}
	if params.Filter != nil {
		req.Filter = accessFilter(params.Filter.PrincipalID)
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]retrieval.SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		r := retrieval.SearchResult{
			ID:     pt.Id.GetUuid(),
			Score:  float64(pt.Score),
			Source: retrieval.SourceSemantic,
		}
		for k, v := range pt.Payload {
			switch k {
			case payloadContent:
				r.Content = v.GetStringValue()
			case payloadDocID:
				r.DocumentID = v.GetStringValue()
			case payloadDocTitle:
				r.DocumentTitle = v.GetStringValue()
			}
		}
		results[i] = r
	}
	return results, nil
}

// accessFilter matches points with no principal payload (global) or with the
// requesting principal's id.
func accessFilter(principalID string) *pb.Filter {
	return &pb.Filter{
		Should: []*pb.Condition{
			{ConditionOneOf: &pb.Condition_IsEmpty{
				IsEmpty: &pb.IsEmptyCondition{Key: payloadPrincipal},
			}},
			{ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   payloadPrincipal,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: principalID}},
				},
			}},
		},
	}
}

// Ping asks the server for its health status.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := pb.NewQdrantClient(s.conn).HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

var _ retrieval.VectorStore = (*Store)(nil)
