/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Game-flow outcomes. These are regular results of play, not faults: every
// operation that rejects a request with one of these leaves the session
// untouched, and the caller is expected to inspect them with errors.Is.
var (
	ErrGameNotFound      = errors.New("game not found")
	ErrPlayerNotFound    = errors.New("player not in game")
	ErrAlreadyStarted    = errors.New("game has already started")
	ErrDuplicateName     = errors.New("name already taken")
	ErrMediatorPresent   = errors.New("mediator already connected")
	ErrBuzzerNotOpen     = errors.New("buzzer is not open")
	ErrBuzzerNotClosed   = errors.New("buzzer has already been opened")
	ErrAlreadyBuzzed     = errors.New("already buzzed")
	ErrAlreadyEliminated = errors.New("already answered this question wrong")
	ErrQuestionUsed      = errors.New("question already used")
	ErrNoSuchQuestion    = errors.New("no such question on the board")
	ErrNoQuestion        = errors.New("no question selected")
	ErrInvalidToken      = errors.New("invalid token")
	ErrMissingAction     = errors.New("action is required")
	ErrUnknownAction     = errors.New("unknown action")
	ErrInvalidQuestions  = errors.New("invalid question set")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
