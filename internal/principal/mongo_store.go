package principal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"goa.design/llmgateway/internal/model"
)

const (
	defaultAPIKeysCollection = "api_keys"
	defaultProjectsCollection = "projects"
	defaultOrgsCollection     = "organizations"
	defaultOpTimeout          = 5 * time.Second
)

// MongoOptions configures the Mongo-backed reference Store.
type MongoOptions struct {
	Client     *mongodriver.Client
	Database   string
	Timeout    time.Duration
}

// MongoStore is a reference Store implementation over MongoDB collections,
// grounded on features/run/mongo/clients/mongo/client.go's typed-wrapper
// pattern. The gateway core treats this purely as one Store implementation
// among possible others; the collection/document shape is not part of the
// core's contract.
type MongoStore struct {
	apiKeys  *mongodriver.Collection
	projects *mongodriver.Collection
	orgs     *mongodriver.Collection
	timeout  time.Duration
}

// NewMongoStore constructs a MongoStore.
func NewMongoStore(opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("principal: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("principal: database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	return &MongoStore{
		apiKeys:  db.Collection(defaultAPIKeysCollection),
		projects: db.Collection(defaultProjectsCollection),
		orgs:     db.Collection(defaultOrgsCollection),
		timeout:  timeout,
	}, nil
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

type apiKeyDocument struct {
	Token               string   `bson:"token"`
	Status              string   `bson:"status"`
	UsageLimit          float64  `bson:"usage_limit"`
	Usage               float64  `bson:"usage"`
	ProjectID           string   `bson:"project_id"`
	IAMAllowedProviders []string `bson:"iam_allowed_providers,omitempty"`
}

func (s *MongoStore) LookupAPIKey(ctx context.Context, token string) (model.APIKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc apiKeyDocument
	if err := s.apiKeys.FindOne(ctx, bson.M{"token": token}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return model.APIKey{}, ErrNotFound
		}
		return model.APIKey{}, fmt.Errorf("principal: lookup api key: %w", err)
	}
	return model.APIKey{
		ID:                  doc.Token,
		Status:              doc.Status,
		UsageLimit:          doc.UsageLimit,
		Usage:               doc.Usage,
		ProjectID:           doc.ProjectID,
		IAMAllowedProviders: doc.IAMAllowedProviders,
	}, nil
}

type projectDocument struct {
	ID     string `bson:"project_id"`
	Mode   string `bson:"mode"`
	Status string `bson:"status"`
	OrgID  string `bson:"org_id"`
}

func (s *MongoStore) LookupProject(ctx context.Context, projectID string) (model.Project, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc projectDocument
	if err := s.projects.FindOne(ctx, bson.M{"project_id": projectID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, fmt.Errorf("principal: lookup project: %w", err)
	}
	return model.Project{ID: doc.ID, Mode: model.ProjectMode(doc.Mode), Status: doc.Status, OrgID: doc.OrgID}, nil
}

type organizationDocument struct {
	ID                      string    `bson:"org_id"`
	Credits                 float64   `bson:"credits"`
	Plan                    string    `bson:"plan"`
	DevPlan                 string    `bson:"dev_plan"`
	DevPlanCreditsLimit     float64   `bson:"dev_plan_credits_limit"`
	DevPlanCreditsUsed      float64   `bson:"dev_plan_credits_used"`
	DevPlanCreditsExpiresAt time.Time `bson:"dev_plan_credits_expires_at"`
	RetentionLevel          string    `bson:"retention_level"`
	IsPersonal              bool      `bson:"is_personal"`
	DevPlanAllowAllModels   bool      `bson:"dev_plan_allow_all_models"`
}

func (s *MongoStore) LookupOrganization(ctx context.Context, orgID string) (model.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc organizationDocument
	if err := s.orgs.FindOne(ctx, bson.M{"org_id": orgID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return model.Organization{}, ErrNotFound
		}
		return model.Organization{}, fmt.Errorf("principal: lookup organization: %w", err)
	}
	return model.Organization{
		ID:                      doc.ID,
		Credits:                 doc.Credits,
		Plan:                    doc.Plan,
		DevPlan:                 doc.DevPlan,
		DevPlanCreditsLimit:     doc.DevPlanCreditsLimit,
		DevPlanCreditsUsed:      doc.DevPlanCreditsUsed,
		DevPlanCreditsExpiresAt: doc.DevPlanCreditsExpiresAt,
		RetentionLevel:          model.RetentionLevel(doc.RetentionLevel),
		IsPersonal:              doc.IsPersonal,
		DevPlanAllowAllModels:   doc.DevPlanAllowAllModels,
	}, nil
}
