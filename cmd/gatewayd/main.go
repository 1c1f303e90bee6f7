// Command gatewayd runs the LLM request gateway's HTTP surface.
//
// # Configuration
//
// Environment variables, per internal/config's documented defaults plus:
//
//	GATEWAY_ADDR           - HTTP listen address (default ":8080")
//	MONGO_URI              - MongoDB connection string (default "mongodb://localhost:27017")
//	MONGO_DATABASE         - database name (default "llmgateway")
//	REDIS_ADDR             - Redis address for the cache and health stores (default "localhost:6379")
//	AWS_REGION             - region for the Bedrock runtime client (default "us-east-1")
//	<PROVIDER>_API_KEY[_N] - per-provider credential pool, round-robined by C6
//
// Example:
//
//	OPENAI_API_KEY=sk-... ANTHROPIC_API_KEY=sk-ant-... go run ./cmd/gatewayd
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/llmgateway/internal/cache"
	gwconfig "goa.design/llmgateway/internal/config"
	"goa.design/llmgateway/internal/guardrail"
	"goa.design/llmgateway/internal/httpapi"
	"goa.design/llmgateway/internal/logstore"
	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/principal"
	anthropicprovider "goa.design/llmgateway/internal/providers/anthropic"
	bedrockprovider "goa.design/llmgateway/internal/providers/bedrock"
	openaiprovider "goa.design/llmgateway/internal/providers/openai"
	"goa.design/llmgateway/internal/providerctx"
	"goa.design/llmgateway/internal/routing"
	"goa.design/llmgateway/internal/telemetry"
	"goa.design/llmgateway/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()
	logger := telemetry.NewClueLogger()

	cfg := gwconfig.Load()
	addr := envOr("GATEWAY_ADDR", ":8080")

	mongoClient, err := mongo.Connect(mongooptions.Client().ApplyURI(envOr("MONGO_URI", "mongodb://localhost:27017")))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf("disconnect mongo: %v", err)
		}
	}()
	database := envOr("MONGO_DATABASE", "llmgateway")

	principalStore, err := principal.NewMongoStore(principal.MongoOptions{Client: mongoClient, Database: database})
	if err != nil {
		return fmt.Errorf("create principal store: %w", err)
	}
	logStore, err := logstore.NewMongoStore(logstore.MongoOptions{Client: mongoClient, Database: database})
	if err != nil {
		return fmt.Errorf("create log store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: envOr("REDIS_ADDR", "localhost:6379")})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	tokenPool := providerctx.NewEnvTokenPool(namedTokenPools(cfg.ProviderTokenPools), nil)

	clients, encoders, endpoints, err := buildProviderClients(ctx, cfg.ProviderTokenPools)
	if err != nil {
		return fmt.Errorf("build provider clients: %w", err)
	}

	pctx := providerctx.New(endpoints, tokenPool, encoders, nil)
	executor := upstream.New(clients, cfg.UnaryTimeout, cfg.StreamingTimeout, nil, nil)
	cacheStore := cache.NewRedisStore(rdb)
	healthStore := routing.NewRedisHealthStore(rdb)
	gate := guardrail.New(nil, logger) // external guardrail classifier is out of scope (spec.md §1)
	attemptLogger := logstore.New(logStore, logger)

	srv := httpapi.New(
		cfg,
		seedCatalog(),
		healthStore,
		principal.New(principalStore),
		gate,
		pctx,
		executor,
		attemptLogger,
		logger,
		tokenPool,
		httpapi.WithCache(cacheStore),
	)

	return serve(ctx, addr, srv, cfg)
}

// serve binds the listener and blocks until a termination signal or
// context cancellation triggers a graceful drain, grounded on
// registry/registry.go's Run (listen + goroutine + select on
// ctx.Done()/signal/server-error, then a GracefulStop-equivalent shutdown).
func serve(ctx context.Context, addr string, handler http.Handler, cfg gwconfig.Config) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{Handler: handler}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(lis) }()

	log.Printf("gatewayd listening on %s", addr)

	select {
	case <-ctx.Done():
	case <-sigCh:
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// buildProviderClients constructs one model.Client (and matching
// providerctx.BodyEncoder/EndpointResolver) per provider adapter the
// gateway ships, keyed by the provider ids used throughout routing and
// catalog data ("openai", "anthropic", "bedrock"). The OpenAI and Anthropic
// SDK clients are constructed once at startup with the pool's first
// credential; the Bedrock client takes no pool credential and uses the AWS
// default credential chain (awsconfig.LoadDefaultConfig). C6's
// per-attempt credential rotation is recorded for key-health/billing
// bookkeeping but not re-applied to the SDK client instance (DESIGN.md's
// internal/httpapi Open Question #2 records why).
func buildProviderClients(ctx context.Context, pools map[string][]string) (
	map[string]model.Client,
	map[string]providerctx.BodyEncoder,
	map[string]providerctx.EndpointResolver,
	error,
) {
	clients := make(map[string]model.Client)
	encoders := make(map[string]providerctx.BodyEncoder)
	endpoints := make(map[string]providerctx.EndpointResolver)

	if key := firstToken(pools, "openai"); key != "" {
		sdkClient := openai.NewClient(openaioption.WithAPIKey(key))
		c, err := openaiprovider.New(sdkClient.Chat.Completions)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("openai: %w", err)
		}
		clients["openai"] = c
		encoders["openai"] = c
		endpoints["openai"] = constantEndpoint("https://api.openai.com/v1")
	}

	if key := firstToken(pools, "anthropic"); key != "" {
		sdkClient := anthropicsdk.NewClient(anthropicoption.WithAPIKey(key))
		c, err := anthropicprovider.New(sdkClient.Messages)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("anthropic: %w", err)
		}
		clients["anthropic"] = c
		encoders["anthropic"] = c
		endpoints["anthropic"] = constantEndpoint("https://api.anthropic.com/v1")
	}

	if region := envOr("AWS_REGION", ""); region != "" || firstToken(pools, "bedrock") != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(envOr("AWS_REGION", "us-east-1")))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bedrock: load aws config: %w", err)
		}
		runtime := bedrockruntime.NewFromConfig(awsCfg)
		c, err := bedrockprovider.New(runtime)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bedrock: %w", err)
		}
		clients["bedrock"] = c
		encoders["bedrock"] = c
		endpoints["bedrock"] = constantEndpoint(fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", envOr("AWS_REGION", "us-east-1")))
	}

	return clients, encoders, endpoints, nil
}

func constantEndpoint(base string) providerctx.EndpointResolver {
	return func(providerctx.EndpointParams) (string, error) { return base, nil }
}

func firstToken(pools map[string][]string, provider string) string {
	tokens := pools[provider]
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

func namedTokenPools(pools map[string][]string) map[string][]providerctx.NamedToken {
	out := make(map[string][]providerctx.NamedToken, len(pools))
	for provider, tokens := range pools {
		named := make([]providerctx.NamedToken, 0, len(tokens))
		for i, tok := range tokens {
			named = append(named, providerctx.NamedToken{
				EnvVarName: fmt.Sprintf("%s_API_KEY_%d", strings.ToUpper(provider), i),
				Value:      tok,
			})
		}
		out[provider] = named
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
