package vector

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loomctl/loom/internal/store"
)

// QdrantSearcher implements Searcher against a Qdrant collection, for
// deployments whose corpus outgrows the in-memory index. Section and
// repository travel as payload fields so filters run server-side.
type QdrantSearcher struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection string
}

// NewQdrant connects to a Qdrant instance.
func NewQdrant(ctx context.Context, host string, port int, collection string) (*QdrantSearcher, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantSearcher{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: collection,
	}, nil
}

// Sync pushes every record with an embedding into the collection. This is
// the qdrant equivalent of Index.Rebuild; the store stays authoritative.
func (q *QdrantSearcher) Sync(ctx context.Context, reader store.Reader) error {
	recs, err := reader.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("listing records for qdrant sync: %w", err)
	}

	points := make([]*pb.PointStruct, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		if len(rec.Embedding) == 0 {
			continue
		}
		points = append(points, &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: rec.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Embedding}}},
			Payload: map[string]*pb.Value{
				"section":    {Kind: &pb.Value_StringValue{StringValue: string(rec.Section)}},
				"repository": {Kind: &pb.Value_StringValue{StringValue: rec.Repository}},
			},
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err = q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

// Search implements Searcher.
func (q *QdrantSearcher) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
	}
	if cond := qdrantFilter(filter); cond != nil {
		req.Filter = cond
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		results[i] = SearchResult{ID: pt.Id.GetUuid(), Score: pt.Score}
	}
	return results, nil
}

func qdrantFilter(f Filter) *pb.Filter {
	var must []*pb.Condition
	if f.Section != "" {
		must = append(must, keywordCondition("section", string(f.Section)))
	}
	if f.Repository != "" {
		must = append(must, keywordCondition("repository", f.Repository))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

// Close releases the gRPC connection.
func (q *QdrantSearcher) Close() error {
	return q.conn.Close()
}

var _ Searcher = (*QdrantSearcher)(nil)
