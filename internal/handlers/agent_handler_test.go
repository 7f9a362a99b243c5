package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/internal/schedule"
	xhttp "github.com/bubuagent/bubu-agent/pkg/http"
)

type MockAgentService struct {
	mock.Mock
}

func (m *MockAgentService) Plan(ctx context.Context, date time.Time) []model.DaySlotPlan {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.DaySlotPlan)
}

func (m *MockAgentService) Preview(t model.MessageType, date time.Time) model.MessageResult {
	args := m.Called(t, date)
	return args.Get(0).(model.MessageResult)
}

func (m *MockAgentService) TriggerNow(ctx context.Context, t model.MessageType) (model.MessageResult, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.MessageResult), args.Error(1)
}

func (m *MockAgentService) SendCustom(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *MockAgentService) Pause()  { m.Called() }
func (m *MockAgentService) Resume() { m.Called() }

func (m *MockAgentService) Paused() bool {
	return m.Called().Bool(0)
}

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Recent(ctx context.Context, now time.Time, days int) ([]*model.SentRecord, error) {
	args := m.Called(ctx, now, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SentRecord), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func newTestHandler(svc *MockAgentService, records *MockRecordStore) *AgentHandler {
	h := NewAgentHandler(svc, records)
	h.nowFunc = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return h
}

func TestAgentHandler_GetTodayPlan(t *testing.T) {
	t.Run("returns plan", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("Paused").Return(false)
		svc.On("Plan", mock.Anything, mock.Anything).Return([]model.DaySlotPlan{
			{Type: model.TypeMorning, Status: model.SlotPlanned},
			{Type: model.TypeFlirty, Status: model.SlotSent},
			{Type: model.TypeNight, Status: model.SlotSuppressedDnd},
		})

		ctx := setupTestContext("GET", "/plan/today", nil)
		handler.GetTodayPlan(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp planResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, "2026-03-14", resp.Date)
		assert.False(t, resp.Paused)
		assert.Len(t, resp.Slots, 3)

		svc.AssertExpectations(t)
	})

	t.Run("explicit date", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("Paused").Return(false)
		svc.On("Plan", mock.Anything, mock.MatchedBy(func(d time.Time) bool {
			return model.DateKey(d) == "2026-12-25"
		})).Return([]model.DaySlotPlan{})

		ctx := setupTestContext("GET", "/plan/today?date=2026-12-25", nil)
		handler.GetTodayPlan(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("invalid date", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		ctx := setupTestContext("GET", "/plan/today?date=tomorrow", nil)
		handler.GetTodayPlan(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestAgentHandler_GetDryRun(t *testing.T) {
	svc := new(MockAgentService)
	handler := newTestHandler(svc, nil)

	svc.On("Preview", mock.Anything, mock.Anything).
		Return(model.MessageResult{Text: "hello", Status: model.StatusTemplateFallback})

	ctx := setupTestContext("GET", "/dry-run", nil)
	handler.GetDryRun(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var resp dryRunResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Len(t, resp.Messages, 3)
	for _, m := range resp.Messages {
		assert.Equal(t, "hello", m.Text)
	}
	svc.AssertNumberOfCalls(t, "Preview", 3)
}

func TestAgentHandler_GetPreview(t *testing.T) {
	t.Run("valid type", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("Preview", model.TypeMorning, mock.Anything).
			Return(model.MessageResult{Text: "good morning", Status: model.StatusTemplateFallback})

		ctx := setupTestContext("GET", "/preview/morning", nil)
		ctx.SetUserValue("type", "morning")
		handler.GetPreview(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp previewResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, model.TypeMorning, resp.Type)
		assert.Equal(t, "good morning", resp.Text)
		svc.AssertExpectations(t)
	})

	t.Run("unknown type", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		ctx := setupTestContext("GET", "/preview/afternoon", nil)
		ctx.SetUserValue("type", "afternoon")
		handler.GetPreview(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestAgentHandler_SendNow(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("TriggerNow", mock.Anything, model.TypeNight).
			Return(model.MessageResult{Text: "good night", Status: model.StatusAIGenerated}, nil)

		ctx := setupTestContext("POST", "/send-now/night", nil)
		ctx.SetUserValue("type", "night")
		handler.SendNow(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp sendResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, model.StatusAIGenerated, resp.Status)
		svc.AssertExpectations(t)
	})

	t.Run("paused", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("TriggerNow", mock.Anything, model.TypeMorning).
			Return(model.MessageResult{}, schedule.ErrPaused)

		ctx := setupTestContext("POST", "/send-now/morning", nil)
		ctx.SetUserValue("type", "morning")
		handler.SendNow(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})

	t.Run("slot already claimed", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("TriggerNow", mock.Anything, model.TypeMorning).
			Return(model.MessageResult{}, schedule.ErrSlotUnavailable)

		ctx := setupTestContext("POST", "/send-now/morning", nil)
		ctx.SetUserValue("type", "morning")
		handler.SendNow(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})

	t.Run("provider failure", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("TriggerNow", mock.Anything, model.TypeMorning).
			Return(model.MessageResult{}, errors.New("provider down"))

		ctx := setupTestContext("POST", "/send-now/morning", nil)
		ctx.SetUserValue("type", "morning")
		handler.SendNow(ctx)

		assert.Equal(t, 502, ctx.Response.StatusCode())
	})
}

func TestAgentHandler_SendCustom(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("SendCustom", mock.Anything, "miss you").Return("mid-42", nil)

		body, _ := json.Marshal(sendCustomRequest{Text: "miss you"})
		ctx := setupTestContext("POST", "/send-custom", body)
		handler.SendCustom(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp sendResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, "mid-42", resp.ProviderMessageID)
		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		ctx := setupTestContext("POST", "/send-custom", []byte("not json"))
		handler.SendCustom(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("empty text", func(t *testing.T) {
		svc := new(MockAgentService)
		handler := newTestHandler(svc, nil)

		svc.On("SendCustom", mock.Anything, "").Return("", schedule.ErrEmptyMessage)

		body, _ := json.Marshal(sendCustomRequest{Text: ""})
		ctx := setupTestContext("POST", "/send-custom", body)
		handler.SendCustom(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestAgentHandler_PauseResume(t *testing.T) {
	svc := new(MockAgentService)
	handler := newTestHandler(svc, nil)

	svc.On("Pause").Return()
	svc.On("Resume").Return()

	ctx := setupTestContext("POST", "/pause", nil)
	handler.Pause(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"paused":true`)

	ctx = setupTestContext("POST", "/resume", nil)
	handler.Resume(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"paused":false`)

	svc.AssertExpectations(t)
}

func TestAgentHandler_ListRecentMessages(t *testing.T) {
	t.Run("default window", func(t *testing.T) {
		svc := new(MockAgentService)
		records := new(MockRecordStore)
		handler := newTestHandler(svc, records)

		records.On("Recent", mock.Anything, mock.Anything, 7).
			Return([]*model.SentRecord{
				{Date: "2026-03-14", Slot: model.TypeMorning, Status: model.RecordSent},
			}, nil)

		ctx := setupTestContext("GET", "/messages/recent", nil)
		handler.ListRecentMessages(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp recentResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, 1, resp.Total)
		records.AssertExpectations(t)
	})

	t.Run("custom window", func(t *testing.T) {
		svc := new(MockAgentService)
		records := new(MockRecordStore)
		handler := newTestHandler(svc, records)

		records.On("Recent", mock.Anything, mock.Anything, 30).
			Return([]*model.SentRecord{}, nil)

		ctx := setupTestContext("GET", "/messages/recent?days=30", nil)
		handler.ListRecentMessages(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		records.AssertExpectations(t)
	})

	t.Run("invalid days", func(t *testing.T) {
		handler := newTestHandler(new(MockAgentService), new(MockRecordStore))

		for _, v := range []string{"zero", "0", "-1", "31", "365"} {
			ctx := setupTestContext("GET", "/messages/recent?days="+v, nil)
			handler.ListRecentMessages(ctx)

			assert.Equal(t, 400, ctx.Response.StatusCode(), "days=%s", v)
		}
	})

	t.Run("storage error", func(t *testing.T) {
		svc := new(MockAgentService)
		records := new(MockRecordStore)
		handler := newTestHandler(svc, records)

		records.On("Recent", mock.Anything, mock.Anything, 7).
			Return(nil, errors.New("database error"))

		ctx := setupTestContext("GET", "/messages/recent", nil)
		handler.ListRecentMessages(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())
	})
}

type stubProbe struct {
	name      string
	available bool
}

func (p stubProbe) Available(ctx context.Context) bool { return p.available }
func (p stubProbe) Name() string                       { return p.name }

type stubPause struct{ paused bool }

func (p stubPause) Paused() bool { return p.paused }

func TestHealthHandler_GetHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		handler := NewHealthHandler(stubProbe{name: "mock", available: true}, stubPause{})

		ctx := setupTestContext("GET", "/healthz", nil)
		handler.GetHealth(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp healthResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "mock", resp.Provider)
		assert.True(t, resp.ProviderAvailable)
	})

	t.Run("provider unavailable", func(t *testing.T) {
		handler := NewHealthHandler(stubProbe{name: "ultramsg"}, stubPause{paused: true})

		ctx := setupTestContext("GET", "/healthz", nil)
		handler.GetHealth(ctx)

		var resp healthResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.True(t, resp.Paused)
	})
}
