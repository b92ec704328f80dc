package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrGameNotFound), errors.Is(err, ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMissingAction),
		errors.Is(err, ErrUnknownAction),
		errors.Is(err, ErrInvalidQuestions),
		errors.Is(err, ErrNoSuchQuestion):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyStarted),
		errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrMediatorPresent),
		errors.Is(err, ErrBuzzerNotOpen),
		errors.Is(err, ErrBuzzerNotClosed),
		errors.Is(err, ErrAlreadyBuzzed),
		errors.Is(err, ErrAlreadyEliminated),
		errors.Is(err, ErrQuestionUsed),
		errors.Is(err, ErrNoQuestion):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) int {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}

	written, _ := w.Write(data)

	return written
}

func writeError(cfg *Config, w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	writeJSON(cfg, w, status, map[string]string{"error": message})
}

func createGame(cfg *Config, engine *Engine, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var override *QuestionSet
		if r.ContentLength > 0 {
			var body struct {
				Questions json.RawMessage `json:"questions"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(cfg, w, ErrInvalidQuestions)
				return
			}
			if len(body.Questions) > 0 {
				parsed, err := parseQuestionSet(body.Questions)
				if err != nil {
					writeError(cfg, w, err)
					return
				}
				override = parsed
			}
		}

		session, err := engine.CreateSession(r.Context(), override)
		if err != nil {
			errs <- err
			writeError(cfg, w, err)
			return
		}

		written := writeJSON(cfg, w, http.StatusOK, map[string]string{
			"gameId":    session.ID,
			"hostToken": session.HostToken,
		})

		logf(cfg, "GAMES: Created game %s (%s) for %s in %s",
			session.ID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func getGameState(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		view, err := engine.PublicState(r.Context(), ps.ByName("gameid"), r.URL.Query().Get("playerId"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, view)
	}
}

func joinGame(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			PlayerName string `json:"playerName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}

		name := strings.TrimSpace(body.PlayerName)
		if name == "" {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}

		gameID := ps.ByName("gameid")
		playerID, err := engine.JoinPlayer(r.Context(), gameID, name)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		logf(cfg, "GAMES: Player %q joined %s", name, gameID)

		writeJSON(cfg, w, http.StatusOK, map[string]string{
			"playerId":   playerID,
			"playerName": name,
		})
	}
}

func buzzGame(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			PlayerID string `json:"playerId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PlayerID == "" {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "player id is required"})
			return
		}

		gameID := ps.ByName("gameid")
		position, err := engine.Buzz(r.Context(), gameID, body.PlayerID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		logf(cfg, "GAMES: Buzz from %s in %s at position %d", body.PlayerID, gameID, position)

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"success":  true,
			"position": position,
		})
	}
}

func controlGame(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			HostToken string         `json:"hostToken"`
			Action    Action         `json:"action"`
			Payload   ControlPayload `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		if body.HostToken == "" {
			writeJSON(cfg, w, http.StatusUnauthorized, map[string]string{"error": "host token is required"})
			return
		}

		gameID := ps.ByName("gameid")
		result, err := engine.Control(r.Context(), gameID, body.HostToken, body.Action, body.Payload)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		logf(cfg, "GAMES: Action %q applied to %s", body.Action, gameID)

		writeJSON(cfg, w, http.StatusOK, result)
	}
}

// pollGame is the player/host polling endpoint. Reads run the lazy buzzer
// timeout check before projecting, so an expired window is observed locked.
func pollGame(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		query := r.URL.Query()

		var view *GameView
		var err error
		if token := query.Get("hostToken"); token != "" {
			view, err = engine.HostState(r.Context(), gameID, token)
		} else {
			view, err = engine.PublicState(r.Context(), gameID, query.Get("playerId"))
		}
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, view)
	}
}

func joinMediator(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		token, err := engine.JoinMediator(r.Context(), gameID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		logf(cfg, "GAMES: Mediator joined %s", gameID)

		writeJSON(cfg, w, http.StatusOK, map[string]string{"mediatorToken": token})
	}
}

func pollMediator(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.URL.Query().Get("mediatorToken")
		if token == "" {
			writeJSON(cfg, w, http.StatusUnauthorized, map[string]string{"error": "mediator token is required"})
			return
		}

		view, err := engine.MediatorState(r.Context(), ps.ByName("gameid"), token)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, view)
	}
}

// serveGameQR generates a PNG QR code pointing at the game's join page.
func serveGameQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// redirectNewGame handles GET /path by creating a fresh game and redirecting
// the host to its page, carrying the host token in the fragment.
func redirectNewGame(cfg *Config, path string, engine *Engine, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		session, err := engine.CreateSession(r.Context(), nil)
		if err != nil {
			errs <- err
			http.Error(w, "unable to create game", http.StatusInternalServerError)
			return
		}

		logf(cfg, "GAMES: Created game %s/%s", path, session.ID)
		http.Redirect(w, r, cfg.prefix+path+"/"+session.ID+"#host="+session.HostToken, http.StatusTemporaryRedirect)
	}
}

// registerTriviaGame sets up routes so that:
//   - $path                        → creates a game, redirects to its page
//   - $path/:gameid                → HTML client
//   - $path/:gameid/ws             → live state stream for that game
//   - $path/:gameid/qr             → PNG QR code for that game URL
//   - /api$path...                 → JSON operation surface
func registerTriviaGame(cfg *Config, path string, mux *httprouter.Router, engine *Engine, errs chan<- error) {
	watch := newWatchManager(cfg, engine)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, engine, errs))
	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveGameWS(cfg, watch))
	mux.GET(cfg.prefix+path+"/:gameid/qr", serveGameQR(cfg))

	api := cfg.prefix + "/api" + path
	mux.POST(api, createGame(cfg, engine, errs))
	mux.GET(api+"/:gameid", getGameState(cfg, engine))
	mux.GET(api+"/:gameid/poll", pollGame(cfg, engine))
	mux.POST(api+"/:gameid/join", joinGame(cfg, engine))
	mux.POST(api+"/:gameid/buzz", buzzGame(cfg, engine))
	mux.POST(api+"/:gameid/control", controlGame(cfg, engine))
	mux.POST(api+"/:gameid/mediator", joinMediator(cfg, engine))
	mux.GET(api+"/:gameid/mediator", pollMediator(cfg, engine))
}
