package gateway

import (
	"context"
	"sync"

	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/google/uuid"
)

// MockGateway accepts every send and remembers what it saw. Used for local
// development and tests when no real provider is configured.
type MockGateway struct {
	mu      sync.Mutex
	sent    []MockMessage
	metrics *ProviderMetrics
}

type MockMessage struct {
	To   string
	Body string
	ID   string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{metrics: NewProviderMetrics()}
}

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) Metrics() *ProviderMetrics { return g.metrics }

func (g *MockGateway) Send(ctx context.Context, to, body string) (string, error) {
	id := uuid.NewString()

	g.mu.Lock()
	g.sent = append(g.sent, MockMessage{To: to, Body: body, ID: id})
	g.mu.Unlock()

	g.metrics.RecordSuccess(0)
	logger.Info("Mock WhatsApp send", "to", MaskPhone(to), "body_length", len(body), "message_id", id)
	return id, nil
}

func (g *MockGateway) Available(ctx context.Context) bool { return true }

// Sent returns a copy of every accepted message.
func (g *MockGateway) Sent() []MockMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MockMessage, len(g.sent))
	copy(out, g.sent)
	return out
}
