// Package httpapi implements the HTTP/JSON surface (SPEC_FULL.md
// section 6 / spec.md section 6), translating each route into an
// Arena command. Grounded in the teacher's server/router.go
// (plain handlers, a writeJSON helper, embedded static assets) but
// routed through go-chi/chi instead of http.ServeMux, and additively
// exposing a gorilla/websocket feed of periodic FetchStatus snapshots
// per SPEC_FULL.md's domain-stack section.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cgarena/internal/arena"
	"cgarena/internal/domain"
	"cgarena/internal/filter"
)

// New builds the full /api router around one Arena.
func New(a *arena.Arena, feed *LiveFeed) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/bots", createBot(a))
		r.Get("/bots", fetchBots(a))
		r.Get("/bots/{id}", fetchBotSourceCode(a))
		r.Patch("/bots/{id}", renameBot(a))
		r.Delete("/bots/{id}", deleteBot(a))

		r.Get("/status", fetchStatus(a))

		r.Post("/leaderboards", createLeaderboard(a))
		r.Patch("/leaderboards/{id}", patchLeaderboard(a))
		r.Delete("/leaderboards/{id}", deleteLeaderboard(a))

		r.Post("/chart", chartHandler(a))
		r.Post("/matchmaking", enableMatchmaking(a))

		if feed != nil {
			r.Get("/live", feed.ServeHTTP)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// errorBody is the {error_code, message} shape spec.md section 6
// requires for every error response.
type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	var code string
	var status int
	switch kind {
	case domain.KindNotFound:
		code, status = "not_found", http.StatusNotFound
	case domain.KindValidationFailed:
		code, status = "validation_failed", http.StatusBadRequest
	case domain.KindAlreadyExists:
		code, status = "already_exists", http.StatusConflict
	default:
		code, status = "internal_error", http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{ErrorCode: code, Message: err.Error()})
}

func parseBotId(r *http.Request) (domain.BotId, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.ValidationFailedf("invalid bot id %q", raw)
	}
	return domain.NewBotId(n)
}

func parseLeaderboardId(r *http.Request) (domain.LeaderboardId, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.ValidationFailedf("invalid leaderboard id %q", raw)
	}
	return domain.NewLeaderboardId(n)
}

type createBotRequest struct {
	Name       string `json:"name"`
	SourceCode string `json:"source_code"`
	Language   string `json:"language"`
}

func createBot(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ValidationFailedf("invalid request body"))
			return
		}
		name, err := domain.NewBotName(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		src, err := domain.NewSourceCode(req.SourceCode)
		if err != nil {
			writeError(w, err)
			return
		}
		lang, err := domain.NewLanguage(req.Language)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := a.CreateBot(r.Context(), name, src, lang)
		if err != nil {
			writeError(w, err)
			return
		}
		if res.Err != nil {
			writeError(w, res.Err)
			return
		}
		writeJSON(w, http.StatusCreated, res.Bot)
	}
}

func fetchBots(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := a.FetchStatus(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status.Bots)
	}
}

func fetchBotSourceCode(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseBotId(r)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := a.FetchBotSourceCode(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !res.Found {
			writeError(w, domain.NotFoundf("bot %d not found", id))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"source_code": res.Source.String()})
	}
}

type renameBotRequest struct {
	Name string `json:"name"`
}

func renameBot(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseBotId(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req renameBotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ValidationFailedf("invalid request body"))
			return
		}
		name, err := domain.NewBotName(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := a.RenameBot(r.Context(), id, name)
		if err != nil {
			writeError(w, err)
			return
		}
		if res.Err != nil {
			writeError(w, res.Err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"renamed": true})
	}
}

func deleteBot(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseBotId(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := a.DeleteBot(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func fetchStatus(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := a.FetchStatus(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

type leaderboardRequest struct {
	Name   string `json:"name"`
	Filter string `json:"filter"`
}

func createLeaderboard(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req leaderboardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ValidationFailedf("invalid request body"))
			return
		}
		name, err := domain.NewLeaderboardName(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		f, err := filter.Parse(req.Filter)
		if err != nil {
			writeError(w, domain.ValidationFailedf("invalid filter: %v", err))
			return
		}
		overview, err := a.CreateLeaderboard(r.Context(), name, req.Filter, f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, overview)
	}
}

func patchLeaderboard(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseLeaderboardId(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req leaderboardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ValidationFailedf("invalid request body"))
			return
		}
		name, err := domain.NewLeaderboardName(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		f, err := filter.Parse(req.Filter)
		if err != nil {
			writeError(w, domain.ValidationFailedf("invalid filter: %v", err))
			return
		}
		res, err := a.PatchLeaderboard(r.Context(), id, name, req.Filter, f)
		if err != nil {
			writeError(w, err)
			return
		}
		if res.Err != nil {
			writeError(w, res.Err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func deleteLeaderboard(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseLeaderboardId(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := a.DeleteLeaderboard(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type chartRequest struct {
	Filter        string `json:"filter"`
	AttributeName string `json:"attribute_name"`
}

func chartHandler(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ValidationFailedf("invalid request body"))
			return
		}
		f, err := filter.Parse(req.Filter)
		if err != nil {
			writeError(w, domain.ValidationFailedf("invalid filter: %v", err))
			return
		}
		res, err := a.Chart(r.Context(), f, req.AttributeName)
		if err != nil {
			writeError(w, err)
			return
		}
		if res.Err != nil {
			writeError(w, res.Err)
			return
		}
		writeJSON(w, http.StatusOK, res.Overview)
	}
}

type enableMatchmakingRequest struct {
	Enabled bool `json:"enabled"`
}

func enableMatchmaking(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enableMatchmakingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ValidationFailedf("invalid request body"))
			return
		}
		if err := a.EnableMatchmaking(r.Context(), req.Enabled); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
