/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		var page strings.Builder

		page.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		page.WriteString(`<title>triviabox</title></head>`)
		page.WriteString(fmt.Sprintf(`<body><a href="%s/trivia">Start a new game</a></body></html>`, cfg.prefix))

		_, _ = w.Write([]byte(page.String()))
	}
}

// serveGamePage renders the minimal per-game client shell. The page is the
// join target behind the share QR code; game state itself comes from the
// JSON API or the websocket stream.
func serveGamePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")

		var page strings.Builder

		page.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		page.WriteString(fmt.Sprintf("<title>triviabox - %s</title></head><body>", gameID))
		page.WriteString(fmt.Sprintf("<h1>Game %s</h1>", gameID))
		page.WriteString(fmt.Sprintf(`<img src="%s/trivia/%s/qr" alt="Share QR" width="320" height="320">`, cfg.prefix, gameID))
		page.WriteString(fmt.Sprintf(`<p>Join this game at <a href="%s/trivia/%s">this page</a> or scan the code.</p>`, cfg.prefix, gameID))
		page.WriteString("</body></html>")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(page.String()))
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
