/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed data/questions.json
var defaultQuestions []byte

// QuestionSet is the raw shape a game board is built from, either the
// embedded default set, a --questions file, or a per-game override supplied
// at creation time. Trivia content is not validated, only shape.
type QuestionSet struct {
	Categories []struct {
		Name      string `json:"name"`
		Questions []struct {
			Value    int    `json:"value"`
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"questions"`
	} `json:"categories"`
}

func (qs *QuestionSet) validate() error {
	if len(qs.Categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidQuestions)
	}
	for i, cat := range qs.Categories {
		if cat.Name == "" {
			return fmt.Errorf("%w: category %d has no name", ErrInvalidQuestions, i)
		}
		if len(cat.Questions) == 0 {
			return fmt.Errorf("%w: category %q has no questions", ErrInvalidQuestions, cat.Name)
		}
		for j, q := range cat.Questions {
			if q.Value <= 0 {
				return fmt.Errorf("%w: category %q question %d has no value", ErrInvalidQuestions, cat.Name, j)
			}
			if q.Question == "" || q.Answer == "" {
				return fmt.Errorf("%w: category %q question %d is missing text", ErrInvalidQuestions, cat.Name, j)
			}
		}
	}
	return nil
}

// buildBoard snapshots the set into a fresh board with all cells unused.
func (qs *QuestionSet) buildBoard() Board {
	board := Board{
		Categories: make([]string, 0, len(qs.Categories)),
		Questions:  make([][]BoardCell, 0, len(qs.Categories)),
	}

	for _, cat := range qs.Categories {
		board.Categories = append(board.Categories, cat.Name)

		cells := make([]BoardCell, 0, len(cat.Questions))
		for _, q := range cat.Questions {
			cells = append(cells, BoardCell{
				Value:    q.Value,
				Question: q.Question,
				Answer:   q.Answer,
			})
		}
		board.Questions = append(board.Questions, cells)
	}

	return board
}

func parseQuestionSet(data []byte) (*QuestionSet, error) {
	var qs QuestionSet
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuestions, err)
	}
	if err := qs.validate(); err != nil {
		return nil, err
	}
	return &qs, nil
}

// loadQuestionSet returns the set configured via --questions, falling back
// to the embedded default.
func loadQuestionSet(cfg *Config) (*QuestionSet, error) {
	if cfg.questions == "" {
		return parseQuestionSet(defaultQuestions)
	}

	data, err := os.ReadFile(cfg.questions)
	if err != nil {
		return nil, err
	}

	return parseQuestionSet(data)
}
