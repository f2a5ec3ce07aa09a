package qdrant

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/bookchunk/internal/vector"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Repository implements vector.Repository using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a Qdrant-backed repository.
func New(ctx context.Context, host string, port int, collection string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

func (r *Repository) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", r.collection, err)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, points []vector.Point) error {
	pts := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pts[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: toPayload(p.Book),
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         pts,
	})
	return err
}

func (r *Repository) Search(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	matches := make([]vector.Match, len(resp.Result))
	for i, pt := range resp.Result {
		matches[i] = vector.Match{
			ID:    pt.Id.GetUuid(),
			Score: pt.Score,
			Book:  fromPayload(pt.Payload),
		}
	}
	return matches, nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

func toPayload(b vector.Payload) map[string]*pb.Value {
	authors := make([]*pb.Value, len(b.Authors))
	for i, a := range b.Authors {
		authors[i] = stringValue(a)
	}
	return map[string]*pb.Value{
		"isbn":      stringValue(b.ISBN),
		"title":     stringValue(b.Title),
		"publisher": stringValue(b.Publisher),
		"thumbnail": stringValue(b.Thumbnail),
		"contents":  stringValue(b.Contents),
		"authors":   {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: authors}}},
	}
}

func fromPayload(p map[string]*pb.Value) vector.Payload {
	var authors []string
	for _, v := range p["authors"].GetListValue().GetValues() {
		authors = append(authors, v.GetStringValue())
	}
	return vector.Payload{
		ISBN:      p["isbn"].GetStringValue(),
		Title:     p["title"].GetStringValue(),
		Authors:   authors,
		Publisher: p["publisher"].GetStringValue(),
		Thumbnail: p["thumbnail"].GetStringValue(),
		Contents:  p["contents"].GetStringValue(),
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

var _ vector.Repository = (*Repository)(nil)
