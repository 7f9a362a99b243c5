package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/fasthttp/router"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/internal/schedule"
	xhttp "github.com/bubuagent/bubu-agent/pkg/http"
	"github.com/pkg/errors"
)

type AgentService interface {
	Plan(ctx context.Context, date time.Time) []model.DaySlotPlan
	Preview(t model.MessageType, date time.Time) model.MessageResult
	TriggerNow(ctx context.Context, t model.MessageType) (model.MessageResult, error)
	SendCustom(ctx context.Context, text string) (string, error)
	Pause()
	Resume()
	Paused() bool
}

type RecordStore interface {
	Recent(ctx context.Context, now time.Time, days int) ([]*model.SentRecord, error)
}

type AgentHandler struct {
	svc     AgentService
	records RecordStore
	nowFunc func() time.Time
}

func RegisterAgentRoutes(e *router.Group, h *AgentHandler) {
	e.GET("/plan/today", h.GetTodayPlan)
	e.GET("/dry-run", h.GetDryRun)
	e.GET("/preview/{type}", h.GetPreview)
	e.POST("/send-now/{type}", h.SendNow)
	e.POST("/send-custom", h.SendCustom)
	e.POST("/pause", h.Pause)
	e.POST("/resume", h.Resume)
	e.GET("/messages/recent", h.ListRecentMessages)
}

func NewAgentHandler(svc AgentService, records RecordStore) *AgentHandler {
	return &AgentHandler{
		svc:     svc,
		records: records,
		nowFunc: time.Now,
	}
}

type planResponse struct {
	Date   string              `json:"date"`
	Paused bool                `json:"paused"`
	Slots  []model.DaySlotPlan `json:"slots"`
}

type previewResponse struct {
	Type   model.MessageType   `json:"type"`
	Date   string              `json:"date"`
	Text   string              `json:"text"`
	Status model.ComposeStatus `json:"status"`
}

type dryRunResponse struct {
	Date     string            `json:"date"`
	Messages []previewResponse `json:"messages"`
}

type sendCustomRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	Status            model.ComposeStatus `json:"status,omitempty"`
	Text              string              `json:"text,omitempty"`
	ProviderMessageID string              `json:"provider_message_id,omitempty"`
}

type recentResponse struct {
	Items []*model.SentRecord `json:"items"`
	Total int                 `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *AgentHandler) GetTodayPlan(ctx *xhttp.RequestCtx) {
	date := h.nowFunc()
	if v := query(ctx, "date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeError(ctx, 400, "invalid date: "+v)
			return
		}
		date = t
	}

	writeJSON(ctx, 200, planResponse{
		Date:   model.DateKey(date),
		Paused: h.svc.Paused(),
		Slots:  h.svc.Plan(ctx, date),
	})
}

func (h *AgentHandler) GetDryRun(ctx *xhttp.RequestCtx) {
	date := h.nowFunc()
	resp := dryRunResponse{Date: model.DateKey(date)}
	for _, t := range model.AllTypes() {
		result := h.svc.Preview(t, date)
		resp.Messages = append(resp.Messages, previewResponse{
			Type:   t,
			Date:   model.DateKey(date),
			Text:   result.Text,
			Status: result.Status,
		})
	}
	writeJSON(ctx, 200, resp)
}

func (h *AgentHandler) GetPreview(ctx *xhttp.RequestCtx) {
	t, err := model.ParseMessageType(param(ctx, "type"))
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	date := h.nowFunc()
	result := h.svc.Preview(t, date)
	writeJSON(ctx, 200, previewResponse{
		Type:   t,
		Date:   model.DateKey(date),
		Text:   result.Text,
		Status: result.Status,
	})
}

func (h *AgentHandler) SendNow(ctx *xhttp.RequestCtx) {
	t, err := model.ParseMessageType(param(ctx, "type"))
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	result, err := h.svc.TriggerNow(ctx, t)
	switch {
	case errors.Is(err, schedule.ErrPaused):
		writeError(ctx, 409, "agent is paused")
		return
	case errors.Is(err, schedule.ErrSlotUnavailable):
		writeError(ctx, 409, "slot already claimed")
		return
	case err != nil:
		writeError(ctx, 502, err.Error())
		return
	}

	writeJSON(ctx, 200, sendResponse{Status: result.Status, Text: result.Text})
}

func (h *AgentHandler) SendCustom(ctx *xhttp.RequestCtx) {
	var req sendCustomRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	id, err := h.svc.SendCustom(ctx, req.Text)
	switch {
	case errors.Is(err, schedule.ErrPaused):
		writeError(ctx, 409, "agent is paused")
		return
	case errors.Is(err, schedule.ErrEmptyMessage), errors.Is(err, schedule.ErrMessageTooLong):
		writeError(ctx, 400, err.Error())
		return
	case err != nil:
		writeError(ctx, 502, err.Error())
		return
	}

	writeJSON(ctx, 200, sendResponse{Text: req.Text, ProviderMessageID: id})
}

func (h *AgentHandler) Pause(ctx *xhttp.RequestCtx) {
	h.svc.Pause()
	writeJSON(ctx, 200, map[string]bool{"paused": true})
}

func (h *AgentHandler) Resume(ctx *xhttp.RequestCtx) {
	h.svc.Resume()
	writeJSON(ctx, 200, map[string]bool{"paused": false})
}

func (h *AgentHandler) ListRecentMessages(ctx *xhttp.RequestCtx) {
	days := 7
	if v := query(ctx, "days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 30 {
			writeError(ctx, 400, "invalid days: "+v)
			return
		}
		days = n
	}

	items, err := h.records.Recent(ctx, h.nowFunc(), days)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, recentResponse{Items: items, Total: len(items)})
}
