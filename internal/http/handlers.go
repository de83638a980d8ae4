package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"envelopes/internal/core"
	"envelopes/internal/i18n"
	"envelopes/internal/services"
)

// CreateChallengeResponse is returned by POST /api/challenges.
type CreateChallengeResponse struct {
	Code      string          `json:"code"`
	Challenge *core.Challenge `json:"challenge"`
	Progress  core.Progress   `json:"progress"`
}

// AchievementsResponse lists localized achievements.
type AchievementsResponse struct {
	Language     string             `json:"language"`
	Achievements []i18n.Achievement `json:"achievements"`
}

// EnvelopesResponse lists filtered envelopes.
type EnvelopesResponse struct {
	Filter    core.EnvelopeFilter `json:"filter"`
	Sort      core.EnvelopeSort   `json:"sort"`
	Envelopes []core.Envelope     `json:"envelopes"`
}

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	req, err := ParseCreateChallenge(r, s.defaultCurrency)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	v, err := s.svc.Start(r.Context(), services.StartParams{
		Target:       req.Target,
		Days:         req.Days,
		Currency:     req.Currency,
		Distribution: core.Distribution(req.Distribution),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/challenges/"+v.Code).
		Body(CreateChallengeResponse{Code: v.Code, Challenge: v.Challenge, Progress: v.Progress}).
		Write(w)
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handleUpdateChallenge(w http.ResponseWriter, r *http.Request) {
	req, err := ParseUpdateChallenge(r)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	v, err := s.svc.SetCurrency(r.Context(), chi.URLParam(r, "code"), req.Currency)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handleResetChallenge(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reset(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Join(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handleOpenEnvelope(w http.ResponseWriter, r *http.Request) {
	id, err := ParseEnvelopeID(chi.URLParam(r, "id"))
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	res, err := s.svc.Open(r.Context(), chi.URLParam(r, "code"), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Body(res).Write(w)
}

func (s *Server) handleListEnvelopes(w http.ResponseWriter, r *http.Request) {
	p, err := ParseListParams(r.URL.Query())
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	envs, err := s.svc.Envelopes(r.Context(), chi.URLParam(r, "code"), p.Filter, p.Sort)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Body(EnvelopesResponse{Filter: p.Filter, Sort: p.Sort, Envelopes: envs}).Write(w)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	lang := PreferredLanguage(r)
	list, err := s.svc.Achievements(r.Context(), chi.URLParam(r, "code"), lang)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().
		Body(AchievementsResponse{Language: i18n.Match(lang).String(), Achievements: list}).
		Write(w)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cur, err := ParseCatalogCurrency(r.URL.Query(), s.defaultCurrency)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	lang := PreferredLanguage(r)
	NewJSONResponse().
		Body(AchievementsResponse{Language: i18n.Match(lang).String(), Achievements: s.svc.Catalog(lang, cur)}).
		Write(w)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	points, err := s.svc.Timeline(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"timeline": points}).Write(w)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePreviewParams(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	preview, err := s.svc.Preview(p.Target, p.Days, p.Distribution)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Body(preview).Write(w)
}
