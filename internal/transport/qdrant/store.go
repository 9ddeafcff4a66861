// Package qdrant is the sole owner of all Qdrant operations. The corpus is
// read-only at query time; this store only lists points, it never writes.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Point is one raw corpus point: identifier, payload fields and the named
// vectors attached to it. Decoding into domain types happens in the
// repository layer.
type Point struct {
	ID      string
	Payload map[string]*pb.Value
	Vectors map[string][]float32
}

// Store reads corpus points from Qdrant over gRPC.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	pageSize    uint32
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string, pageSize int) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		pageSize:    uint32(pageSize),
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping verifies connectivity by listing collections.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	return nil
}

// ListAll scrolls every point of a collection, payloads and vectors included.
func (s *Store) ListAll(ctx context.Context, collection string) ([]Point, error) {
	return s.list(ctx, collection, nil)
}

// ListByField scrolls the points whose payload field matches one of the given
// keyword values.
func (s *Store) ListByField(ctx context.Context, collection, field string, values []string) ([]Point, error) {
	if len(values) == 0 {
		return nil, nil
	}
	should := make([]*pb.Condition, 0, len(values))
	for _, v := range values {
		should = append(should, fieldMatch(field, v))
	}
	// A single-field OR filter: any of the provided values matches.
	return s.list(ctx, collection, &pb.Filter{Should: should})
}

func (s *Store) list(ctx context.Context, collection string, filter *pb.Filter) ([]Point, error) {
	var (
		out    []Point
		offset *pb.PointId
	)

	for {
		limit := s.pageSize
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Limit:          &limit,
			Offset:         offset,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
			WithVectors: &pb.WithVectorsSelector{
				SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll %s: %w", collection, err)
		}

		for _, rp := range resp.GetResult() {
			out = append(out, Point{
				ID:      pointID(rp.GetId()),
				Payload: rp.GetPayload(),
				Vectors: vectors(rp.GetVectors()),
			})
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			return out, nil
		}
	}
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// vectors flattens the named/unnamed vector output into a map. Unnamed
// vectors are stored under the empty key.
func vectors(v *pb.Vectors) map[string][]float32 {
	out := make(map[string][]float32)
	if v == nil {
		return out
	}
	if single := v.GetVector(); single != nil && len(single.GetData()) > 0 {
		out[""] = single.GetData()
	}
	if named := v.GetVectors(); named != nil {
		for name, vec := range named.GetVectors() {
			out[name] = vec.GetData()
		}
	}
	return out
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
