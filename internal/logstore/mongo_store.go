package logstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoOptions configures MongoStore, mirroring
// features/runlog/mongo/clients/mongo/client.go's Options shape.
type MongoOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

const (
	defaultCollection = "gateway_attempt_logs"
	defaultTimeout    = 5 * time.Second
)

// MongoStore implements Store over a MongoDB collection of append-only
// attempt documents.
type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoStore constructs a MongoStore, grounded on
// features/runlog/mongo/clients/mongo/client.go's New (collection
// resolution plus timeout defaulting).
func NewMongoStore(opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("logstore: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("logstore: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &MongoStore{
		coll:    opts.Client.Database(opts.Database).Collection(collection),
		timeout: timeout,
	}, nil
}

type attemptDocument struct {
	LogID           string            `bson:"log_id"`
	RetriedByLogID  string            `bson:"retried_by_log_id,omitempty"`
	Retried         bool              `bson:"retried"`
	APIKeyID        string            `bson:"api_key_id"`
	ProjectID       string            `bson:"project_id"`
	OrgID           string            `bson:"org_id"`
	RequestedModel  string            `bson:"requested_model"`
	UsedModel       string            `bson:"used_model"`
	NativeMapping   string            `bson:"native_mapping"`
	Provider        string            `bson:"provider"`
	Sampling        map[string]any    `bson:"sampling,omitempty"`
	InputTokens     int               `bson:"input_tokens"`
	OutputTokens    int               `bson:"output_tokens"`
	DurationMS      float64           `bson:"duration_ms"`
	TTFTMs          float64           `bson:"time_to_first_token_ms"`
	TTFRTMs         float64           `bson:"time_to_first_reasoning_token_ms"`
	Cost            map[string]float64 `bson:"cost,omitempty"`
	FinishReason    string            `bson:"finish_reason"`
	HasError        bool              `bson:"has_error"`
	ErrorDetails    string            `bson:"error_details,omitempty"`
	Streamed        bool              `bson:"streamed"`
	Canceled        bool              `bson:"canceled"`
	Cached          bool              `bson:"cached"`
	ToolResults     []string          `bson:"tool_results,omitempty"`
	Plugins         []string          `bson:"plugins,omitempty"`

	Content            string `bson:"content,omitempty"`
	ReasoningContent   string `bson:"reasoning_content,omitempty"`
	RawRequestPayload  []byte `bson:"raw_request_payload,omitempty"`
	RawResponsePayload []byte `bson:"raw_response_payload,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
}

func fromRecord(rec Record) attemptDocument {
	return attemptDocument{
		LogID:              rec.ID,
		RetriedByLogID:     rec.RetriedByLogID,
		Retried:            rec.Retried,
		APIKeyID:           rec.APIKeyID,
		ProjectID:          rec.ProjectID,
		OrgID:              rec.OrgID,
		RequestedModel:     rec.RequestedModel,
		UsedModel:          rec.UsedModel,
		NativeMapping:      rec.NativeMapping,
		Provider:           rec.Provider,
		Sampling:           rec.Sampling,
		InputTokens:        rec.Usage.InputTokens,
		OutputTokens:       rec.Usage.OutputTokens,
		DurationMS:         rec.DurationMS,
		TTFTMs:             rec.TimeToFirstTokenMS,
		TTFRTMs:            rec.TimeToFirstReasoningTokenMS,
		Cost:               rec.Cost,
		FinishReason:       string(rec.FinishReason),
		HasError:           rec.HasError,
		ErrorDetails:       rec.ErrorDetails,
		Streamed:           rec.Streamed,
		Canceled:           rec.Canceled,
		Cached:             rec.Cached,
		ToolResults:        rec.ToolResults,
		Plugins:            rec.Plugins,
		Content:            rec.Content,
		ReasoningContent:   rec.ReasoningContent,
		RawRequestPayload:  rec.RawRequestPayload,
		RawResponsePayload: rec.RawResponsePayload,
		CreatedAt:          time.Now(),
	}
}

// Insert writes one attempt document.
func (s *MongoStore) Insert(ctx context.Context, rec Record) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.InsertOne(cctx, fromRecord(rec))
	return err
}
