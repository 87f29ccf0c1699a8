package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1536
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository handles vector operations against the record collection.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption

	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	config := info.GetConfig()
	if config == nil {
		return 0, false
	}
	params := config.GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

// RecordPayload is the denormalized payload stored with each vector.
// It carries everything the read path needs to filter and to seed entity
// groups without a relational round trip.
type RecordPayload struct {
	RecordID     string   `json:"record_id"`
	Kind         string   `json:"kind"` // recommendation or annotation
	ContentType  string   `json:"content_type"`
	AuthorID     string   `json:"author_id"`
	Visibility   string   `json:"visibility"`
	PlaceID      string   `json:"place_id,omitempty"`
	ServiceID    string   `json:"service_id,omitempty"`
	PlaceName    string   `json:"place_name,omitempty"`
	BusinessName string   `json:"business_name,omitempty"`
	Rating       int      `json:"rating,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Snippet      string   `json:"snippet,omitempty"`
}

// Upsert inserts or updates a record vector with its payload.
func (r *QdrantRepository) Upsert(ctx context.Context, pointID string, vector []float32, payload *RecordPayload) error {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{
					Uuid: uid.String(),
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: vector,
					},
				},
			},
			Payload: map[string]*pb.Value{
				"record_id":     {Kind: &pb.Value_StringValue{StringValue: payload.RecordID}},
				"kind":          {Kind: &pb.Value_StringValue{StringValue: payload.Kind}},
				"content_type":  {Kind: &pb.Value_StringValue{StringValue: payload.ContentType}},
				"author_id":     {Kind: &pb.Value_StringValue{StringValue: payload.AuthorID}},
				"visibility":    {Kind: &pb.Value_StringValue{StringValue: payload.Visibility}},
				"place_id":      {Kind: &pb.Value_StringValue{StringValue: payload.PlaceID}},
				"service_id":    {Kind: &pb.Value_StringValue{StringValue: payload.ServiceID}},
				"place_name":    {Kind: &pb.Value_StringValue{StringValue: payload.PlaceName}},
				"business_name": {Kind: &pb.Value_StringValue{StringValue: payload.BusinessName}},
				"rating":        {Kind: &pb.Value_IntegerValue{IntegerValue: int64(payload.Rating)}},
				"snippet":       {Kind: &pb.Value_StringValue{StringValue: payload.Snippet}},
				"labels":        labelsToValue(payload.Labels),
			},
		},
	}

	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

func labelsToValue(labels []string) *pb.Value {
	values := make([]*pb.Value, len(labels))
	for i, label := range labels {
		values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: label}}
	}
	return &pb.Value{
		Kind: &pb.Value_ListValue{
			ListValue: &pb.ListValue{Values: values},
		},
	}
}

// VectorHit is a raw nearest-neighbor result.
type VectorHit struct {
	ID      string
	Score   float32
	Payload *RecordPayload
}

// SearchFilters defines optional predicates ANDed into the vector query.
// AuthorIDs, when non-nil, restricts hits to records authored by any of the
// listed users (social graph or group restriction, resolved by the caller).
// PublicOnly limits hits to publicly visible records.
type SearchFilters struct {
	ContentType *string
	AuthorIDs   []string
	PublicOnly  bool
}

// Search performs a filtered nearest-neighbor query. All predicates run
// inside the Qdrant query so limit applies after filtering, and a hit at
// exactly the threshold is excluded (strictly greater).
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, limit int, threshold float32, filters *SearchFilters) ([]VectorHit, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	if threshold > 0 {
		req.ScoreThreshold = &threshold
	}
	if filters != nil {
		req.Filter = buildFilter(filters)
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]VectorHit, 0, len(resp.Result))
	for _, scored := range resp.Result {
		if !aboveThreshold(scored.Score, threshold) {
			continue
		}
		results = append(results, VectorHit{
			ID:      scored.Id.GetUuid(),
			Score:   scored.Score,
			Payload: parsePayload(scored.Payload),
		})
	}

	return results, nil
}

// aboveThreshold applies the strict cut. Qdrant's score_threshold is
// inclusive, so a hit scoring exactly the threshold still comes back and must
// be dropped here.
func aboveThreshold(score, threshold float32) bool {
	if threshold <= 0 {
		return true
	}
	return score > threshold
}

func buildFilter(filters *SearchFilters) *pb.Filter {
	var conditions []*pb.Condition

	if filters.ContentType != nil && *filters.ContentType != "" {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "content_type",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: *filters.ContentType},
					},
				},
			},
		})
	}

	if filters.AuthorIDs != nil {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "author_id",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: filters.AuthorIDs},
						},
					},
				},
			},
		})
	}

	if filters.PublicOnly {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "visibility",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: "public"},
					},
				},
			},
		})
	}

	if len(conditions) == 0 {
		return nil
	}

	return &pb.Filter{
		Must: conditions,
	}
}

func parsePayload(payload map[string]*pb.Value) *RecordPayload {
	if payload == nil {
		return nil
	}

	p := &RecordPayload{}
	if v, ok := payload["record_id"]; ok {
		p.RecordID = v.GetStringValue()
	}
	if v, ok := payload["kind"]; ok {
		p.Kind = v.GetStringValue()
	}
	if v, ok := payload["content_type"]; ok {
		p.ContentType = v.GetStringValue()
	}
	if v, ok := payload["author_id"]; ok {
		p.AuthorID = v.GetStringValue()
	}
	if v, ok := payload["visibility"]; ok {
		p.Visibility = v.GetStringValue()
	}
	if v, ok := payload["place_id"]; ok {
		p.PlaceID = v.GetStringValue()
	}
	if v, ok := payload["service_id"]; ok {
		p.ServiceID = v.GetStringValue()
	}
	if v, ok := payload["place_name"]; ok {
		p.PlaceName = v.GetStringValue()
	}
	if v, ok := payload["business_name"]; ok {
		p.BusinessName = v.GetStringValue()
	}
	if v, ok := payload["rating"]; ok {
		p.Rating = int(v.GetIntegerValue())
	}
	if v, ok := payload["snippet"]; ok {
		p.Snippet = v.GetStringValue()
	}
	if v, ok := payload["labels"]; ok {
		if list := v.GetListValue(); list != nil {
			for _, item := range list.Values {
				p.Labels = append(p.Labels, item.GetStringValue())
			}
		}
	}

	return p
}

// Delete deletes a point by ID
func (r *QdrantRepository) Delete(ctx context.Context, pointID string) error {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	_, err = r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}

	return nil
}
