package handlers

import (
	"context"

	"github.com/tinfoilhat/hatscore/internal/events"
)

// EventHistory returns recently published events
type EventHistory interface {
	Recent(n int) []events.Event
}

// RecentEventsRequest limits the history returned
type RecentEventsRequest struct {
	Limit int `query:"limit" minimum:"0" maximum:"1000" default:"50" doc:"Maximum events, 0 for all retained"`
}

// RecentEventsResponse lists events oldest first
type RecentEventsResponse struct {
	Body struct {
		Events []events.Event `json:"events" doc:"Events of the current test cycle, oldest first"`
	}
}

// EventsHandler serves the event history for displays that poll
type EventsHandler struct {
	history EventHistory
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(history EventHistory) *EventsHandler {
	return &EventsHandler{history: history}
}

// GetRecentEvents returns the newest events since the last reset
func (h *EventsHandler) GetRecentEvents(ctx context.Context, req *RecentEventsRequest) (*RecentEventsResponse, error) {
	resp := &RecentEventsResponse{}
	resp.Body.Events = h.history.Recent(req.Limit)
	return resp, nil
}
