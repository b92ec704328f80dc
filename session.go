package main

import (
	"sort"
	"strings"
)

// BuzzerState tracks the race window for the currently selected question.
// closed: no buzzes accepted yet; open: first-come ordering in progress;
// locked: window over, host is adjudicating.
type BuzzerState string

const (
	BuzzerClosed BuzzerState = "closed"
	BuzzerOpen   BuzzerState = "open"
	BuzzerLocked BuzzerState = "locked"
)

// BoardCell is one valued question on the board. Used flips false->true
// exactly once, when the question resolves, and never resets.
type BoardCell struct {
	Value    int    `json:"value"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Used     bool   `json:"used"`
}

// Board is fixed at creation; only the Used flags mutate afterwards.
type Board struct {
	Categories []string      `json:"categories"`
	Questions  [][]BoardCell `json:"questions"`
}

type PlayerRecord struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type QuestionRef struct {
	CategoryIdx int `json:"categoryIdx"`
	QuestionIdx int `json:"questionIdx"`
}

// BuzzEntry records one accepted buzz. Timestamp is assigned server-side at
// acceptance; client-reported reaction times are never trusted for ordering.
type BuzzEntry struct {
	PlayerID  string `json:"playerId"`
	Timestamp int64  `json:"timestamp"`
}

// Session is the complete authoritative state of one game. It is persisted
// as a single JSON document and always replaced wholesale, so readers never
// observe a partial write.
type Session struct {
	ID              string                  `json:"id"`
	HostToken       string                  `json:"hostToken"`
	MediatorToken   string                  `json:"mediatorToken,omitempty"`
	Started         bool                    `json:"started"`
	Board           Board                   `json:"board"`
	Players         map[string]PlayerRecord `json:"players"`
	CurrentQuestion *QuestionRef            `json:"currentQuestion,omitempty"`
	BuzzerState     BuzzerState             `json:"buzzerState"`
	BuzzerOpenedAt  int64                   `json:"buzzerOpenedAt,omitempty"`
	Buzzes          []BuzzEntry             `json:"buzzes"`
	Eliminated      []string                `json:"eliminatedFromRound"`
	AnswerRevealed  bool                    `json:"answerRevealed"`
}

func (s *Session) currentCell() *BoardCell {
	if s.CurrentQuestion == nil {
		return nil
	}
	return &s.Board.Questions[s.CurrentQuestion.CategoryIdx][s.CurrentQuestion.QuestionIdx]
}

func (s *Session) isEliminated(playerID string) bool {
	for _, id := range s.Eliminated {
		if id == playerID {
			return true
		}
	}
	return false
}

func (s *Session) hasBuzzed(playerID string) bool {
	for _, b := range s.Buzzes {
		if b.PlayerID == playerID {
			return true
		}
	}
	return false
}

// addPlayer registers a new player. Names are unique case-insensitively, and
// joining is only possible before the game starts.
func (s *Session) addPlayer(playerID, name string) error {
	if s.Started {
		return ErrAlreadyStarted
	}
	for _, p := range s.Players {
		if strings.EqualFold(p.Name, name) {
			return ErrDuplicateName
		}
	}
	s.Players[playerID] = PlayerRecord{Name: name, Score: 0}
	return nil
}

// addBuzz appends a buzz stamped with the given server time, keeps the list
// sorted ascending by timestamp (stable, so equal stamps keep arrival order)
// and returns the player's 1-based position in the resulting order.
func (s *Session) addBuzz(playerID string, at int64) (int, error) {
	if s.BuzzerState != BuzzerOpen {
		return 0, ErrBuzzerNotOpen
	}
	if _, ok := s.Players[playerID]; !ok {
		return 0, ErrPlayerNotFound
	}
	if s.isEliminated(playerID) {
		return 0, ErrAlreadyEliminated
	}
	if s.hasBuzzed(playerID) {
		return 0, ErrAlreadyBuzzed
	}

	s.Buzzes = append(s.Buzzes, BuzzEntry{PlayerID: playerID, Timestamp: at})
	sort.SliceStable(s.Buzzes, func(i, j int) bool {
		return s.Buzzes[i].Timestamp < s.Buzzes[j].Timestamp
	})

	for i, b := range s.Buzzes {
		if b.PlayerID == playerID {
			return i + 1, nil
		}
	}

	// Unreachable: the entry was just inserted.
	return 0, ErrPlayerNotFound
}

// selectQuestion points the session at an unused board cell and resets the
// round state for it.
func (s *Session) selectQuestion(categoryIdx, questionIdx int) error {
	if categoryIdx < 0 || categoryIdx >= len(s.Board.Questions) {
		return ErrNoSuchQuestion
	}
	if questionIdx < 0 || questionIdx >= len(s.Board.Questions[categoryIdx]) {
		return ErrNoSuchQuestion
	}
	if s.Board.Questions[categoryIdx][questionIdx].Used {
		return ErrQuestionUsed
	}

	s.CurrentQuestion = &QuestionRef{CategoryIdx: categoryIdx, QuestionIdx: questionIdx}
	s.BuzzerState = BuzzerClosed
	s.Buzzes = nil
	s.Eliminated = nil
	s.AnswerRevealed = false

	return nil
}

func (s *Session) openBuzzer(at int64) error {
	if s.CurrentQuestion == nil {
		return ErrNoQuestion
	}
	if s.BuzzerState != BuzzerClosed {
		return ErrBuzzerNotClosed
	}

	s.BuzzerState = BuzzerOpen
	s.BuzzerOpenedAt = at

	return nil
}

// closeBuzzer force-locks the race from any state.
func (s *Session) closeBuzzer() {
	s.BuzzerState = BuzzerLocked
}

// checkTimeout locks an open buzzer once the window has elapsed. Reports
// whether the session changed, so callers know to persist. Idempotent.
func (s *Session) checkTimeout(now, windowMillis int64) bool {
	if s.BuzzerState != BuzzerOpen || s.BuzzerOpenedAt == 0 {
		return false
	}
	if now-s.BuzzerOpenedAt < windowMillis {
		return false
	}

	s.BuzzerState = BuzzerLocked

	return true
}

// awardPoints credits the question's value, retires the cell, and resolves
// the round. An unknown player still resolves the question without scoring,
// matching host adjudication on a player who just left.
func (s *Session) awardPoints(playerID string) error {
	cell := s.currentCell()
	if cell == nil {
		return ErrNoQuestion
	}

	if p, ok := s.Players[playerID]; ok {
		p.Score += cell.Value
		s.Players[playerID] = p
	}

	cell.Used = true
	s.resolveRound()

	return nil
}

// wrongAnswer debits the question's value, eliminates the player for the
// rest of this round, and reopens the race for everyone else.
func (s *Session) wrongAnswer(playerID string, at int64) error {
	cell := s.currentCell()
	if cell == nil {
		return ErrNoQuestion
	}

	if p, ok := s.Players[playerID]; ok {
		p.Score -= cell.Value
		s.Players[playerID] = p
	}

	if !s.isEliminated(playerID) {
		s.Eliminated = append(s.Eliminated, playerID)
	}

	s.Buzzes = nil
	s.BuzzerState = BuzzerOpen
	s.BuzzerOpenedAt = at

	return nil
}

// noWinner retires the cell without scoring anyone.
func (s *Session) noWinner() error {
	cell := s.currentCell()
	if cell == nil {
		return ErrNoQuestion
	}

	cell.Used = true
	s.resolveRound()

	return nil
}

// resetQuestion restarts the round from scratch on the same question.
func (s *Session) resetQuestion() {
	s.BuzzerState = BuzzerClosed
	s.Buzzes = nil
	s.Eliminated = nil
}

func (s *Session) revealAnswer() error {
	if s.CurrentQuestion == nil {
		return ErrNoQuestion
	}

	s.AnswerRevealed = true

	return nil
}

func (s *Session) resolveRound() {
	s.CurrentQuestion = nil
	s.BuzzerState = BuzzerClosed
	s.Buzzes = nil
	s.Eliminated = nil
}
