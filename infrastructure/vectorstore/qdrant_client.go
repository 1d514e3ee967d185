package vectorstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strconv"

	"fortio.org/safecast"
	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	"data-sculptor/config"
	"data-sculptor/domain"
)

const (
	fieldProfileID          = "profile_id"
	fieldSectionIndex       = "section_index"
	fieldProfileDescription = "profile_description"
	fieldDescription        = "description"
	fieldCode               = "code"
)

// sectionNamespace seeds the deterministic point ids of profile sections, so
// re-uploading a profile replaces its points instead of duplicating them.
var sectionNamespace = uuid.MustParse("6f1d2c1e-5b7a-4c55-9a43-0d0f3c2a9e11")

// QdrantClient implements domain.SectionRepository on a Qdrant collection.
type QdrantClient struct {
	client         qdrant.PointsClient
	collectionName string
	conn           *grpc.ClientConn
}

// NewQdrantClient connects to Qdrant and makes sure the collection exists.
func NewQdrantClient(ctx context.Context, cfg config.QdrantConfig) (*QdrantClient, error) {
	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.UseTLS {
		opts[0] = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to Qdrant: %w", err)
	}

	c := &QdrantClient{
		client:         qdrant.NewPointsClient(conn),
		collectionName: cfg.Collection,
		conn:           conn,
	}
	if err := c.ensureCollectionExists(ctx, qdrant.NewCollectionsClient(conn), cfg.VectorSize); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ensure collection exists: %w", err)
	}
	return c, nil
}

// NewQdrantClientWithPoints wraps an existing points client.
func NewQdrantClientWithPoints(points qdrant.PointsClient, collection string) *QdrantClient {
	return &QdrantClient{client: points, collectionName: collection}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", key), method, req, reply, cc, opts...)
	}
}

// Close releases the gRPC connection.
func (c *QdrantClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *QdrantClient) ensureCollectionExists(ctx context.Context, collections qdrant.CollectionsClient, vectorSize int) error {
	_, err := collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: c.collectionName})
	if err == nil {
		return nil
	}

	log.Printf("Collection %s does not exist, creating...\n", c.collectionName)
	size, err := safecast.Conv[uint64](vectorSize)
	if err != nil {
		return fmt.Errorf("invalid vector size %d: %w", vectorSize, err)
	}
	_, err = collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: c.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	log.Printf("Collection %s created successfully\n", c.collectionName)
	return nil
}

// SectionPointID returns the stable point id of a profile section.
func SectionPointID(profileID string, index int) string {
	return uuid.NewSHA1(sectionNamespace, []byte(profileID+"/"+strconv.Itoa(index))).String()
}

// UpsertSections stores sections with their embeddings. Sections without an
// embedding are skipped.
func (c *QdrantClient) UpsertSections(ctx context.Context, sections []domain.ProfileSection) error {
	points := make([]*qdrant.PointStruct, 0, len(sections))
	for _, s := range sections {
		if len(s.Embedding) == 0 {
			log.Printf("qdrant: section %s/%d has no embedding, skipping", s.ProfileID, s.Index)
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: SectionPointID(s.ProfileID, s.Index)}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: s.Embedding}}},
			Payload: sectionPayload(s),
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collectionName,
		Points:         points,
		Wait:           proto.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points to Qdrant: %w", err)
	}
	return nil
}

// GetSection looks a section up by its payload fields.
func (c *QdrantClient) GetSection(ctx context.Context, profileID string, index int) (domain.ProfileSection, error) {
	resp, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.collectionName,
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			keywordCondition(fieldProfileID, profileID),
			integerCondition(fieldSectionIndex, int64(index)),
		}},
		Limit:       proto.Uint32(1),
		WithPayload: &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return domain.ProfileSection{}, fmt.Errorf("failed to scroll points in Qdrant: %w", err)
	}
	points := resp.GetResult()
	if len(points) == 0 {
		return domain.ProfileSection{}, fmt.Errorf("%w: section %d of profile %s", domain.ErrNotFound, index, profileID)
	}
	return sectionFromPayload(points[0].GetPayload())
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: &qdrant.FieldCondition{
		Key:   key,
		Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
	}}}
}

func integerCondition(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: &qdrant.FieldCondition{
		Key:   key,
		Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: value}},
	}}}
}

func sectionPayload(s domain.ProfileSection) map[string]*qdrant.Value {
	str := func(v string) *qdrant.Value { return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}} }
	return map[string]*qdrant.Value{
		fieldProfileID:          str(s.ProfileID),
		fieldSectionIndex:       {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(s.Index)}},
		fieldProfileDescription: str(s.ProfileDescription),
		fieldDescription:        str(s.Description),
		fieldCode:               str(s.Code),
	}
}

func sectionFromPayload(payload map[string]*qdrant.Value) (domain.ProfileSection, error) {
	index, err := safecast.Conv[int](payload[fieldSectionIndex].GetIntegerValue())
	if err != nil {
		return domain.ProfileSection{}, fmt.Errorf("invalid section index in payload: %w", err)
	}
	return domain.ProfileSection{
		ProfileID:          payload[fieldProfileID].GetStringValue(),
		Index:              index,
		ProfileDescription: payload[fieldProfileDescription].GetStringValue(),
		Description:        payload[fieldDescription].GetStringValue(),
		Code:               payload[fieldCode].GetStringValue(),
	}, nil
}
