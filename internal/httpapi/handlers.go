package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/assistant"
	"github.com/DoyleJ11/seetheplay/internal/dashboard"
	"github.com/DoyleJ11/seetheplay/internal/directory"
	"github.com/DoyleJ11/seetheplay/internal/hub"
	"github.com/DoyleJ11/seetheplay/internal/lineup"
	"github.com/DoyleJ11/seetheplay/internal/scenario"
	"github.com/DoyleJ11/seetheplay/internal/session"
	"github.com/DoyleJ11/seetheplay/internal/types"
)

var validate = validator.New()

const maxCodeAttempts = 8

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type handlers struct {
	hub            *hub.Hub
	directory      directory.Directory
	connectTimeout time.Duration
	log            *zap.SugaredLogger
}

func (a *handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var d *dashboard.Dashboard
	for attempt := 0; d == nil; attempt++ {
		if attempt == maxCodeAttempts {
			writeError(w, http.StatusServiceUnavailable, "no free session code", true)
			return
		}
		c, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate code", false)
			return
		}
		d, err = a.hub.CreateNew(r.Context(), c)
		switch {
		case errors.Is(err, hub.ErrCodeTaken):
			a.log.Debugw("collision on code, regenerating", "code", c)
		case err != nil:
			writeError(w, http.StatusServiceUnavailable, "hub unavailable", true)
			return
		}
	}
	code := d.Code

	// A failed dial leaves the session disconnected; the client can retry via /connect.
	if err := a.connect(r.Context(), d); err != nil {
		a.log.Warnw("initial stream connect failed", "session", code, "error", err)
	}

	writeJSON(w, http.StatusCreated, types.CreateSessionResponse{Code: code, Status: string(d.Stream.Status())})
}

func (a *handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	v, err := d.Session.View(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session unavailable", true)
		return
	}
	writeJSON(w, http.StatusOK, types.SessionView{
		Code:    d.Code,
		Version: v.Version,
		Clients: v.NumClients,
		State:   v.State,
		Lineup:  v.Lineup,
	})
}

func (a *handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	a.hub.Inbox() <- hub.RemoveSession{Code: d.Code}
	w.WriteHeader(http.StatusNoContent)
}

func (a *handlers) Connect(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if err := a.connect(r.Context(), d); err != nil {
		writeError(w, http.StatusBadGateway, "stream unavailable", true)
		return
	}
	writeJSON(w, http.StatusOK, types.CreateSessionResponse{Code: d.Code, Status: string(d.Stream.Status())})
}

func (a *handlers) SelectPlayer(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	var req types.SelectPlayerRequest
	if !decode(w, r, &req) {
		return
	}
	d.Session.Post(session.SelectPlayer{PlayerID: req.PlayerID})
	w.WriteHeader(http.StatusAccepted)
}

func (a *handlers) TriggerScenario(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	var req types.ScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := d.Scenarios.Trigger(r.Context(), req.Scenario)
	switch {
	case errors.Is(err, scenario.ErrUnknownScenario):
		writeError(w, http.StatusBadRequest, err.Error(), false)
	case errors.Is(err, scenario.ErrNotSent):
		writeError(w, http.StatusServiceUnavailable, err.Error(), true)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error(), true)
	default:
		writeJSON(w, http.StatusAccepted, types.ScenarioResponse{Name: p.Name, Type: p.Type, Severity: p.Severity})
	}
}

func (a *handlers) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenario.Presets())
}

func (a *handlers) AskQuestion(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	var req types.QuestionRequest
	if !decode(w, r, &req) {
		return
	}

	pc, err := d.Assistant.Ask(r.Context(), req.Question)
	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error(), false)
	case errors.Is(err, assistant.ErrNoPlayerContext):
		writeError(w, http.StatusConflict, err.Error(), true)
	case errors.Is(err, assistant.ErrNotSent):
		writeError(w, http.StatusServiceUnavailable, err.Error(), true)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error(), true)
	default:
		writeJSON(w, http.StatusAccepted, types.QuestionResponse{PlayerID: pc.PlayerID, PlayerName: pc.PlayerName})
	}
}

func (a *handlers) AssignPlayer(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	side, pos, ok := slot(w, r)
	if !ok {
		return
	}
	var req types.AssignPlayerRequest
	if !decode(w, r, &req) {
		return
	}

	reply := make(chan error, 1)
	d.Session.Post(session.AssignPlayer{Side: side, Position: pos, PlayerID: req.PlayerID, Reply: reply})
	a.finishEdit(w, r, reply)
}

func (a *handlers) ClearSlot(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	side, pos, ok := slot(w, r)
	if !ok {
		return
	}

	reply := make(chan error, 1)
	d.Session.Post(session.ClearLineupSlot{Side: side, Position: pos, Reply: reply})
	a.finishEdit(w, r, reply)
}

func (a *handlers) ResetLineup(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	d.Session.Post(session.ResetLineup{})
	w.WriteHeader(http.StatusNoContent)
}

func (a *handlers) EvaluateLineup(w http.ResponseWriter, r *http.Request) {
	d, ok := a.lookup(w, r)
	if !ok {
		return
	}
	res, err := d.Evaluate(r.Context())
	switch {
	case errors.Is(err, dashboard.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error(), false)
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error(), true)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *handlers) Teams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.directory.Teams(r.Context())
	if err != nil {
		a.collaboratorError(w, "teams", err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (a *handlers) TeamPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := a.directory.TeamPlayers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.collaboratorError(w, "team players", err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *handlers) lookup(w http.ResponseWriter, r *http.Request) (*dashboard.Dashboard, bool) {
	d, err := a.hub.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "hub unavailable", true)
		return nil, false
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "session not found", false)
		return nil, false
	}
	return d, true
}

func (a *handlers) connect(ctx context.Context, d *dashboard.Dashboard) error {
	if a.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.connectTimeout)
		defer cancel()
	}
	return d.Connect(ctx)
}

func (a *handlers) finishEdit(w http.ResponseWriter, r *http.Request, reply chan error) {
	select {
	case err := <-reply:
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), false)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "session unavailable", true)
	}
}

func (a *handlers) collaboratorError(w http.ResponseWriter, op string, err error) {
	a.log.Warnw("collaborator call failed", "op", op, "error", err)
	status := http.StatusBadGateway
	if errors.Is(err, directory.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeError(w, status, err.Error(), directory.Retryable(err))
}

func slot(w http.ResponseWriter, r *http.Request) (lineup.Side, lineup.Position, bool) {
	side, err := lineup.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return "", "", false
	}
	pos, err := lineup.ParsePosition(chi.URLParam(r, "position"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return "", "", false
	}
	return side, pos, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad json", false)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, retryable bool) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Retryable: retryable})
}
