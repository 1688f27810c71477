package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/audit-engine/go-core/internal/events"
	"github.com/audit-engine/go-core/internal/pagination"
	"github.com/audit-engine/go-core/internal/stats"
)

func (s *Server) ingestEventHandler(w http.ResponseWriter, r *http.Request) {
	var e events.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.eventService.Ingest(r.Context(), &e); err != nil {
		if errors.Is(err, events.ErrDuplicateEvent) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, events.ErrInvalidEvent) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, e)
}

func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := events.Filter{
		Severity: events.Severity(q.Get("severity")),
		RuleID:   q.Get("ruleId"),
	}
	f.DateFrom = parseTimeParam(q.Get("dateFrom"))
	f.DateTo = parseTimeParam(q.Get("dateTo"))

	page, err := s.eventService.List(r.Context(),
		f, q.Get("cursor"), parseIntParam(q.Get("limit")),
		q.Get("sortBy"), q.Get("sortOrder"))
	if err != nil {
		if errors.Is(err, pagination.ErrMalformedCursor) {
			WriteError(w, http.StatusBadRequest, "malformed cursor")
			return
		}
		s.internalError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) topRulesHandler(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"))

	top, err := s.eventService.TopRules(r.Context(), stats.DefaultWindow, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if top == nil {
		top = []events.RuleCount{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"windowMinutes": int(stats.DefaultWindow / time.Minute),
		"rules":         top,
	})
}

func parseIntParam(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseTimeParam(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
