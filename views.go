package main

import "sort"

// Role-scoped projections of a session. Players and shared displays only
// ever see these; question answers stay server-side until a projection is
// allowed to carry them.

type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type BoardCellView struct {
	Value int  `json:"value"`
	Used  bool `json:"used"`
}

type CurrentQuestionView struct {
	Category string `json:"category"`
	Value    int    `json:"value"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

type BuzzView struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Timestamp  int64  `json:"timestamp"`
}

type GameView struct {
	ID                  string               `json:"id"`
	Started             bool                 `json:"started"`
	HasMediator         bool                 `json:"hasMediator"`
	Categories          []string             `json:"categories"`
	Board               [][]BoardCellView    `json:"board"`
	Players             []PlayerView         `json:"players"`
	CurrentQuestion     *CurrentQuestionView `json:"currentQuestion"`
	BuzzerState         BuzzerState          `json:"buzzerState"`
	BuzzerOpenedAt      int64                `json:"buzzerOpenedAt,omitempty"`
	Buzzes              []BuzzView           `json:"buzzes"`
	EliminatedFromRound []string             `json:"eliminatedFromRound"`
	MyBuzzed            bool                 `json:"myBuzzed"`
	AmEliminated        bool                 `json:"amEliminated"`
	AnswerRevealed      bool                 `json:"answerRevealed"`
}

// publicView redacts the board down to value/used cells and annotates buzzes
// with resolved player names. playerID, when non-empty, fills the
// viewer-relative flags.
func publicView(s *Session, playerID string) GameView {
	players := make([]PlayerView, 0, len(s.Players))
	for id, p := range s.Players {
		players = append(players, PlayerView{ID: id, Name: p.Name, Score: p.Score})
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].Name < players[j].Name
	})

	board := make([][]BoardCellView, 0, len(s.Board.Questions))
	for _, cells := range s.Board.Questions {
		row := make([]BoardCellView, 0, len(cells))
		for _, cell := range cells {
			row = append(row, BoardCellView{Value: cell.Value, Used: cell.Used})
		}
		board = append(board, row)
	}

	var current *CurrentQuestionView
	if cell := s.currentCell(); cell != nil {
		current = &CurrentQuestionView{
			Category: s.Board.Categories[s.CurrentQuestion.CategoryIdx],
			Value:    cell.Value,
			Question: cell.Question,
		}
	}

	buzzes := make([]BuzzView, 0, len(s.Buzzes))
	for _, b := range s.Buzzes {
		name := "Unknown"
		if p, ok := s.Players[b.PlayerID]; ok {
			name = p.Name
		}
		buzzes = append(buzzes, BuzzView{
			PlayerID:   b.PlayerID,
			PlayerName: name,
			Timestamp:  b.Timestamp,
		})
	}

	eliminated := make([]string, 0, len(s.Eliminated))
	eliminated = append(eliminated, s.Eliminated...)

	return GameView{
		ID:                  s.ID,
		Started:             s.Started,
		HasMediator:         s.MediatorToken != "",
		Categories:          append([]string(nil), s.Board.Categories...),
		Board:               board,
		Players:             players,
		CurrentQuestion:     current,
		BuzzerState:         s.BuzzerState,
		BuzzerOpenedAt:      s.BuzzerOpenedAt,
		Buzzes:              buzzes,
		EliminatedFromRound: eliminated,
		MyBuzzed:            playerID != "" && s.hasBuzzed(playerID),
		AmEliminated:        playerID != "" && s.isEliminated(playerID),
		AnswerRevealed:      s.AnswerRevealed,
	}
}

// hostView always carries the current answer.
func hostView(s *Session) GameView {
	view := publicView(s, "")
	if cell := s.currentCell(); cell != nil {
		view.CurrentQuestion.Answer = cell.Answer
	}
	return view
}

// mediatorView carries the answer only once the host has revealed it.
func mediatorView(s *Session) GameView {
	view := publicView(s, "")
	if cell := s.currentCell(); cell != nil && s.AnswerRevealed {
		view.CurrentQuestion.Answer = cell.Answer
	}
	return view
}
