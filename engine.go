package main

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is the closed set of host controls. Anything else is rejected with
// ErrUnknownAction before it reaches a session.
type Action string

const (
	ActionStartGame          Action = "startGame"
	ActionSelectQuestion     Action = "selectQuestion"
	ActionRevealAnswer       Action = "revealAnswer"
	ActionOpenBuzzer         Action = "openBuzzer"
	ActionCloseBuzzer        Action = "closeBuzzer"
	ActionAwardPoints        Action = "awardPoints"
	ActionWrongAnswer        Action = "wrongAnswer"
	ActionNoWinner           Action = "noWinner"
	ActionResetQuestion      Action = "resetQuestion"
	ActionDisconnectMediator Action = "disconnectMediator"
	ActionEndGame            Action = "endGame"
)

// ControlPayload carries the action-specific arguments.
type ControlPayload struct {
	CategoryIdx int    `json:"categoryIdx"`
	QuestionIdx int    `json:"questionIdx"`
	PlayerID    string `json:"playerId"`
}

// ControlResult reports the outcome of a control action. Ended tells
// connected clients to stop polling and leave.
type ControlResult struct {
	Success bool `json:"success"`
	Ended   bool `json:"ended,omitempty"`
}

// Engine applies one state transition per call, as an atomic
// read-modify-write of the whole session record. Atomicity per session comes
// from a mutex keyed by game id; the record itself is always replaced
// wholesale in the store.
type Engine struct {
	store     Store
	questions *QuestionSet
	ttl       time.Duration
	window    time.Duration
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(store Store, questions *QuestionSet, ttl, window time.Duration) *Engine {
	return &Engine{
		store:     store,
		questions: questions,
		ttl:       ttl,
		window:    window,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// newGameID returns a short random id, in the same alphabet players type in
// by hand. Collisions are handled by the caller retrying on an existing id.
func newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, 8)
	buf := make([]byte, 16)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == cap(out) {
					return string(out)
				}
			}
		}
	}
}

func (e *Engine) lockSession(id string) *sync.Mutex {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock
}

func (e *Engine) dropLock(id string) {
	e.mu.Lock()
	delete(e.locks, id)
	e.mu.Unlock()
}

// CreateSession builds a fresh game from the configured question bank, or
// from a caller-supplied override that has already passed shape validation.
func (e *Engine) CreateSession(ctx context.Context, override *QuestionSet) (*Session, error) {
	questions := e.questions
	if override != nil {
		questions = override
	}

	session := &Session{
		ID:          newGameID(),
		HostToken:   uuid.NewString(),
		Board:       questions.buildBoard(),
		Players:     make(map[string]PlayerRecord),
		BuzzerState: BuzzerClosed,
	}

	// Re-roll the short id on the rare collision with a live game.
	for {
		if _, err := e.store.Get(ctx, session.ID); err != nil {
			break
		}
		session.ID = newGameID()
	}

	if err := e.store.Set(ctx, session, e.ttl); err != nil {
		return nil, err
	}

	return session, nil
}

// JoinPlayer adds a player to a not-yet-started game.
func (e *Engine) JoinPlayer(ctx context.Context, id, name string) (string, error) {
	defer e.lockSession(id).Unlock()

	session, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	playerID := uuid.NewString()[:8]
	if err := session.addPlayer(playerID, name); err != nil {
		return "", err
	}

	return playerID, e.store.Set(ctx, session, e.ttl)
}

// JoinMediator claims the single mediator slot and returns its bearer token.
func (e *Engine) JoinMediator(ctx context.Context, id string) (string, error) {
	defer e.lockSession(id).Unlock()

	session, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if session.MediatorToken != "" {
		return "", ErrMediatorPresent
	}

	session.MediatorToken = uuid.NewString()

	return session.MediatorToken, e.store.Set(ctx, session, e.ttl)
}

// Buzz records a buzz stamped with the server clock and returns the player's
// 1-based position in the race.
func (e *Engine) Buzz(ctx context.Context, id, playerID string) (int, error) {
	defer e.lockSession(id).Unlock()

	session, err := e.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	session.checkTimeout(e.now().UnixMilli(), e.window.Milliseconds())

	position, err := session.addBuzz(playerID, e.now().UnixMilli())
	if err != nil {
		// A timeout observed above still has to stick.
		if setErr := e.store.Set(ctx, session, e.ttl); setErr != nil {
			return 0, setErr
		}
		return 0, err
	}

	return position, e.store.Set(ctx, session, e.ttl)
}

// Control applies one host action. The token is checked before any dispatch,
// and a rejected action leaves the session unchanged.
func (e *Engine) Control(ctx context.Context, id, hostToken string, action Action, payload ControlPayload) (ControlResult, error) {
	defer e.lockSession(id).Unlock()

	session, err := e.store.Get(ctx, id)
	if err != nil {
		return ControlResult{}, err
	}

	if session.HostToken != hostToken {
		return ControlResult{}, ErrInvalidToken
	}

	switch action {
	case ActionStartGame:
		session.Started = true

	case ActionSelectQuestion:
		err = session.selectQuestion(payload.CategoryIdx, payload.QuestionIdx)

	case ActionRevealAnswer:
		err = session.revealAnswer()

	case ActionOpenBuzzer:
		err = session.openBuzzer(e.now().UnixMilli())

	case ActionCloseBuzzer:
		session.closeBuzzer()

	case ActionAwardPoints:
		err = session.awardPoints(payload.PlayerID)

	case ActionWrongAnswer:
		err = session.wrongAnswer(payload.PlayerID, e.now().UnixMilli())

	case ActionNoWinner:
		err = session.noWinner()

	case ActionResetQuestion:
		session.resetQuestion()

	case ActionDisconnectMediator:
		session.MediatorToken = ""

	case ActionEndGame:
		if err := e.store.Delete(ctx, id); err != nil {
			return ControlResult{}, err
		}
		e.dropLock(id)
		return ControlResult{Success: true, Ended: true}, nil

	case "":
		return ControlResult{}, ErrMissingAction

	default:
		return ControlResult{}, ErrUnknownAction
	}

	if err != nil {
		return ControlResult{}, err
	}

	return ControlResult{Success: true}, e.store.Set(ctx, session, e.ttl)
}

// CheckBuzzerTimeout lazily locks an open buzzer whose window has elapsed.
// There is no background scheduler; this runs before every state read.
func (e *Engine) CheckBuzzerTimeout(ctx context.Context, id string) error {
	defer e.lockSession(id).Unlock()

	session, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if session.checkTimeout(e.now().UnixMilli(), e.window.Milliseconds()) {
		return e.store.Set(ctx, session, e.ttl)
	}

	return nil
}

// readForView runs the timeout check and returns the current record without
// holding the lock afterwards; projections work on the returned copy.
func (e *Engine) readForView(ctx context.Context, id string) (*Session, error) {
	defer e.lockSession(id).Unlock()

	session, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.checkTimeout(e.now().UnixMilli(), e.window.Milliseconds()) {
		if err := e.store.Set(ctx, session, e.ttl); err != nil {
			return nil, err
		}
	}

	return session, nil
}

// PublicState projects the shared view. playerID may be empty; when given,
// the view carries that player's myBuzzed/amEliminated flags.
func (e *Engine) PublicState(ctx context.Context, id, playerID string) (*GameView, error) {
	session, err := e.readForView(ctx, id)
	if err != nil {
		return nil, err
	}

	view := publicView(session, playerID)

	return &view, nil
}

// HostState is the public view plus the current answer, gated on the host
// token.
func (e *Engine) HostState(ctx context.Context, id, hostToken string) (*GameView, error) {
	session, err := e.readForView(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.HostToken != hostToken {
		return nil, ErrInvalidToken
	}

	view := hostView(session)

	return &view, nil
}

// MediatorState is the public view, with the answer included only once the
// host has revealed it.
func (e *Engine) MediatorState(ctx context.Context, id, mediatorToken string) (*GameView, error) {
	session, err := e.readForView(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.MediatorToken == "" || session.MediatorToken != mediatorToken {
		return nil, ErrInvalidToken
	}

	view := mediatorView(session)

	return &view, nil
}
