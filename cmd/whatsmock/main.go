package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SendChatRequest mirrors the ultramsg send-chat payload.
type SendChatRequest struct {
	Token string `json:"token" binding:"required"`
	To    string `json:"to" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

type SendChatResponse struct {
	Sent bool  `json:"sent"`
	ID   int64 `json:"id"`
}

type ConnectionStateResponse struct {
	State      string `json:"state"`
	InstanceID string `json:"instance_id"`
}

// ReceivedMessage is one delivered message kept for inspection.
type ReceivedMessage struct {
	ID         int64     `json:"id"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// MockInstance simulates a connected WhatsApp instance.
type MockInstance struct {
	instanceID   string
	token        string
	deliveryRate float64
	minDelay     time.Duration
	maxDelay     time.Duration
	rng          *rand.Rand

	mu       sync.Mutex
	nextID   int64
	messages []ReceivedMessage
	sent     atomic.Int64
	failed   atomic.Int64
}

func NewMockInstance(token string, deliveryRate float64, minDelay, maxDelay time.Duration) *MockInstance {
	return &MockInstance{
		instanceID:   "mock-" + uuid.New().String()[:8],
		token:        token,
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID:       100,
	}
}

func (m *MockInstance) deliver(req *SendChatRequest) (*ReceivedMessage, bool) {
	time.Sleep(m.randomDelay())

	if m.rng.Float64() >= m.deliveryRate {
		m.failed.Add(1)
		return nil, false
	}

	m.mu.Lock()
	m.nextID++
	msg := ReceivedMessage{
		ID:         m.nextID,
		To:         req.To,
		Body:       req.Body,
		ReceivedAt: time.Now(),
	}
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	m.sent.Add(1)
	return &msg, true
}

func (m *MockInstance) recent(limit int) []ReceivedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.messages) {
		limit = len(m.messages)
	}
	out := make([]ReceivedMessage, limit)
	copy(out, m.messages[len(m.messages)-limit:])
	return out
}

func (m *MockInstance) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	delta := m.maxDelay - m.minDelay
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

type Handler struct {
	instance *MockInstance
}

func NewHandler(instance *MockInstance) *Handler {
	return &Handler{instance: instance}
}

// SendChat handles POST /:instance/messages/chat the way ultramsg does.
func (h *Handler) SendChat(c *gin.Context) {
	var req SendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if req.Token != h.instance.token {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	msg, delivered := h.instance.deliver(&req)
	if !delivered {
		log.Warn().
			Str("to", req.To).
			Msg("Message delivery failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "instance temporarily unavailable"})
		return
	}

	log.Info().
		Int64("id", msg.ID).
		Str("to", msg.To).
		Int("body_len", len(msg.Body)).
		Msg("Message delivered")

	c.JSON(http.StatusOK, SendChatResponse{Sent: true, ID: msg.ID})
}

// ConnectionState handles GET /:instance/instance/connectionState.
func (h *Handler) ConnectionState(c *gin.Context) {
	if c.Query("token") != h.instance.token {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, ConnectionStateResponse{
		State:      "authorized",
		InstanceID: h.instance.instanceID,
	})
}

// ListMessages returns the most recently delivered messages.
func (h *Handler) ListMessages(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": h.instance.recent(limit),
		"sent":     h.instance.sent.Load(),
		"failed":   h.instance.failed.Load(),
	})
}

// UpdateConfig allows changing the delivery rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		DeliveryRate *float64 `json:"delivery_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.DeliveryRate != nil && *config.DeliveryRate >= 0 && *config.DeliveryRate <= 1.0 {
		h.instance.deliveryRate = *config.DeliveryRate
		log.Info().Float64("rate", *config.DeliveryRate).Msg("Updated delivery rate")
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Configuration updated",
		"delivery_rate": h.instance.deliveryRate,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"instance_id": h.instance.instanceID,
		"timestamp":   time.Now(),
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	inst := router.Group("/:instance")
	{
		inst.POST("/messages/chat", handler.SendChat)
		inst.GET("/instance/connectionState", handler.ConnectionState)
		inst.GET("/messages", handler.ListMessages)
	}

	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	token := getEnv("MOCK_TOKEN", "test-token")
	deliveryRate := getEnvFloat("DELIVERY_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 500*time.Millisecond)

	instance := NewMockInstance(token, deliveryRate, minDelay, maxDelay)

	log.Info().
		Str("port", port).
		Str("instance_id", instance.instanceID).
		Float64("delivery_rate", deliveryRate).
		Msg("Starting mock WhatsApp instance")

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: SetupRouter(NewHandler(instance)),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	log.Info().Msg("Server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
