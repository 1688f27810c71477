package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/audit-engine/go-core/internal/api/rest/middleware"
	"github.com/audit-engine/go-core/internal/pagination"
	"github.com/audit-engine/go-core/internal/rules"
)

func (s *Server) createRuleHandler(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule := &rules.Rule{
		Name:        req.Name,
		Description: req.Description,
		Pattern:     req.Pattern,
		Severity:    req.Severity,
	}

	created, err := s.ruleService.Create(r.Context(), s.actor(r), rule)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidRule) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) getRuleHandler(w http.ResponseWriter, r *http.Request) {
	rule, err := s.ruleService.Get(r.Context(), ruleID(r))
	if err != nil {
		s.writeRuleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) updateRuleHandler(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule := &rules.Rule{
		ID:          ruleID(r),
		Name:        req.Name,
		Description: req.Description,
		Pattern:     req.Pattern,
		Severity:    req.Severity,
	}

	updated, err := s.ruleService.Update(r.Context(), s.actor(r), rule)
	if err != nil {
		s.writeRuleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ruleService.Delete(r.Context(), s.actor(r), ruleID(r)); err != nil {
		s.writeRuleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) approveRuleHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionRule(w, r, s.ruleService.Approve)
}

func (s *Server) pauseRuleHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionRule(w, r, s.ruleService.Pause)
}

func (s *Server) resumeRuleHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionRule(w, r, s.ruleService.Resume)
}

func (s *Server) transitionRule(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor rules.Actor, id int64) (*rules.Rule, error)) {
	rule, err := fn(r.Context(), s.actor(r), ruleID(r))
	if err != nil {
		s.writeRuleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := rules.Filter{Status: rules.Status(q.Get("status"))}
	page, err := s.ruleService.List(r.Context(),
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

func (s *Server) writeRuleError(w http.ResponseWriter, err error) {
	var transition *rules.InvalidTransitionError
	switch {
	case errors.Is(err, rules.ErrNotFound):
		WriteError(w, http.StatusNotFound, "rule not found")
	case errors.As(err, &transition):
		WriteError(w, http.StatusConflict, transition.Error())
	default:
		s.internalError(w, err)
	}
}

// actor derives the audit actor from the authenticated claims.
func (s *Server) actor(r *http.Request) rules.Actor {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		return rules.Actor{}
	}
	return rules.Actor{ID: claims.UserID, Name: claims.Username}
}

func ruleID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}
