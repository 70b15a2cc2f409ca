// Package api — handlers.go содержит обработчики эндпоинтов.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/features/resolver"
)

type resolveRequest struct {
	APIKey    string `json:"apikey"`
	GalleryID string `json:"gid"`
	Token     string `json:"token"`
	Variant   string `json:"variant"`
	Force     bool   `json:"force_resolve"`
}

type resolveData struct {
	ArchiveURL string `json:"archive_url,omitempty"`
	RequireGP  int64  `json:"require_gp,omitempty"`
	CurrentGP  int64  `json:"current_gp,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
}

// handleResolve — POST /resolve: получение ссылки на архив.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, resolver.CodeBadRequest, "некорректное тело запроса", nil)
		return
	}

	u := s.verifyUser(w, r, req.APIKey)
	if u == nil {
		return
	}

	res := s.resolver.Resolve(r.Context(), u, resolver.Request{
		GalleryID: req.GalleryID,
		Token:     req.Token,
		Variant:   req.Variant,
		Force:     req.Force,
	})

	writeEnvelope(w, res.Code, res.Msg, resolveData{
		ArchiveURL: res.DownloadURL,
		RequireGP:  res.RequireGP,
		CurrentGP:  res.CurrentGP,
		Cached:     res.Cached,
	})
}

type keyOnlyRequest struct {
	APIKey string `json:"apikey"`
}

// handleBalance — POST /balance: текущий баланс GP.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	var req keyOnlyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, resolver.CodeBadRequest, "некорректное тело запроса", nil)
		return
	}

	u := s.verifyUser(w, r, req.APIKey)
	if u == nil {
		return
	}

	balance, err := s.ledger.Balance(r.Context(), u.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", u.ID).Error("Ошибка чтения баланса")
		writeEnvelope(w, resolver.CodeInternal, "внутренняя ошибка", nil)
		return
	}

	writeEnvelope(w, resolver.CodeOK, "готово", map[string]int64{"current_gp": balance})
}

// handleCheckin — POST /checkin: ежедневный бонус.
// Повторный чекин за день — код 7, баланс в data всё равно присутствует.
func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	var req keyOnlyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, resolver.CodeBadRequest, "некорректное тело запроса", nil)
		return
	}

	u := s.verifyUser(w, r, req.APIKey)
	if u == nil {
		return
	}

	granted, balance, err := s.ledger.Checkin(r.Context(), u.ID)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyCheckedIn) {
			writeEnvelope(w, resolver.CodeCheckedIn, common.ErrAlreadyCheckedIn.Error(),
				map[string]int64{"current_gp": balance})
			return
		}
		log.WithError(err).WithField("user_id", u.ID).Error("Ошибка чекина")
		writeEnvelope(w, resolver.CodeInternal, "внутренняя ошибка", nil)
		return
	}

	writeEnvelope(w, resolver.CodeOK, "готово", map[string]int64{
		"get_gp":     granted,
		"current_gp": balance,
	})
}

// handleRoot — GET /: люди, пришедшие браузером, уходят к боту.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.botURL, http.StatusFound)
}
