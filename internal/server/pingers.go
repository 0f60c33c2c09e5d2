package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/oliverwm/ragserver/internal/objectstore"
)

// ModelPinger probes a chat model backend by sending a minimal generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
type ModelPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewModelPinger constructs a ModelPinger for the given model and backend name.
func NewModelPinger(m model.BaseChatModel, name string) *ModelPinger {
	return &ModelPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return p.name }

// Ping sends a one-word generate request to the backend. A non-error, non-nil
// response means the backend is reachable and serving the configured model.
func (p *ModelPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// ObjectStorePinger probes an object storage bucket by issuing a single-key
// list request against the configured location.
type ObjectStorePinger struct {
	// gateway is the object storage client to probe through.
	gateway *objectstore.Gateway
	// loc is the bucket location (with optional prefix) to list.
	loc objectstore.URI
}

// NewObjectStorePinger constructs an ObjectStorePinger for the given location.
func NewObjectStorePinger(g *objectstore.Gateway, loc objectstore.URI) *ObjectStorePinger {
	return &ObjectStorePinger{gateway: g, loc: loc}
}

// Name returns the dependency label used in readiness responses.
func (p *ObjectStorePinger) Name() string { return "objectstore" }

// Ping lists at most one key under the configured location. Reachability is
// what matters here; an empty bucket is still healthy.
func (p *ObjectStorePinger) Ping(ctx context.Context) error {
	if _, err := p.gateway.HasAny(ctx, p.loc); err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	return nil
}
