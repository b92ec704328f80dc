package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testQuestionSet(t *testing.T) *QuestionSet {
	t.Helper()

	qs, err := parseQuestionSet([]byte(`{
		"categories": [
			{
				"name": "Capitals",
				"questions": [
					{"value": 200, "question": "Capital of France", "answer": "What is Paris?"},
					{"value": 400, "question": "Capital of Australia", "answer": "What is Canberra?"}
				]
			}
		]
	}`))
	if err != nil {
		t.Fatalf("parseQuestionSet: %v", err)
	}

	return qs
}

// testClock lets tests hand the engine an exact sequence of timestamps.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) set(millis int64) {
	c.now = time.UnixMilli(millis)
}

func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()

	store := NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })

	engine := NewEngine(store, testQuestionSet(t), time.Hour, 5*time.Second)

	clock := &testClock{now: time.UnixMilli(1000)}
	engine.now = clock.Now

	return engine, clock
}

func TestEngineFullRound(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id, hostToken := session.ID, session.HostToken

	ann, err := engine.JoinPlayer(ctx, id, "Ann")
	if err != nil {
		t.Fatalf("join Ann: %v", err)
	}
	ben, err := engine.JoinPlayer(ctx, id, "Ben")
	if err != nil {
		t.Fatalf("join Ben: %v", err)
	}

	if _, err := engine.Control(ctx, id, hostToken, ActionStartGame, ControlPayload{}); err != nil {
		t.Fatalf("startGame: %v", err)
	}
	if _, err := engine.Control(ctx, id, hostToken, ActionSelectQuestion, ControlPayload{CategoryIdx: 0, QuestionIdx: 0}); err != nil {
		t.Fatalf("selectQuestion: %v", err)
	}
	if _, err := engine.Control(ctx, id, hostToken, ActionOpenBuzzer, ControlPayload{}); err != nil {
		t.Fatalf("openBuzzer: %v", err)
	}

	// The engine stamps buzzes with its own clock; Ben's processes with an
	// earlier stamp than Ann's, so he ends up ranked first.
	clock.set(1100)
	if pos, err := engine.Buzz(ctx, id, ann); err != nil || pos != 1 {
		t.Fatalf("Ann buzz: got pos %d err %v, want 1 nil", pos, err)
	}
	clock.set(1050)
	if pos, err := engine.Buzz(ctx, id, ben); err != nil || pos != 1 {
		t.Fatalf("Ben buzz: got pos %d err %v, want 1 nil", pos, err)
	}

	view, err := engine.PublicState(ctx, id, ben)
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	if len(view.Buzzes) != 2 || view.Buzzes[0].PlayerID != ben || view.Buzzes[1].PlayerID != ann {
		t.Fatalf("buzz order: got %+v", view.Buzzes)
	}
	if !view.MyBuzzed {
		t.Fatalf("myBuzzed not set for a buzzed player")
	}

	if _, err := engine.Control(ctx, id, hostToken, ActionAwardPoints, ControlPayload{PlayerID: ben}); err != nil {
		t.Fatalf("awardPoints: %v", err)
	}

	view, err = engine.PublicState(ctx, id, "")
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	for _, p := range view.Players {
		switch p.ID {
		case ben:
			if p.Score != 200 {
				t.Fatalf("Ben score: got %d, want 200", p.Score)
			}
		case ann:
			if p.Score != 0 {
				t.Fatalf("Ann score: got %d, want 0", p.Score)
			}
		}
	}
	if !view.Board[0][0].Used {
		t.Fatalf("cell not used after awardPoints")
	}
	if view.CurrentQuestion != nil {
		t.Fatalf("current question not cleared after awardPoints")
	}
}

func TestEngineJoinRules(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := engine.JoinPlayer(ctx, session.ID, "Ann"); err != nil {
		t.Fatalf("join Ann: %v", err)
	}
	if _, err := engine.JoinPlayer(ctx, session.ID, "ann"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate join: got %v, want %v", err, ErrDuplicateName)
	}

	if _, err := engine.Control(ctx, session.ID, session.HostToken, ActionStartGame, ControlPayload{}); err != nil {
		t.Fatalf("startGame: %v", err)
	}
	if _, err := engine.JoinPlayer(ctx, session.ID, "Ben"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("join after start: got %v, want %v", err, ErrAlreadyStarted)
	}

	if _, err := engine.JoinPlayer(ctx, "missing", "Cyd"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("join missing game: got %v, want %v", err, ErrGameNotFound)
	}
}

func TestEngineMediator(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	token, err := engine.JoinMediator(ctx, session.ID)
	if err != nil {
		t.Fatalf("JoinMediator: %v", err)
	}
	if token == "" {
		t.Fatalf("empty mediator token")
	}

	if _, err := engine.JoinMediator(ctx, session.ID); !errors.Is(err, ErrMediatorPresent) {
		t.Fatalf("second mediator: got %v, want %v", err, ErrMediatorPresent)
	}

	if _, err := engine.MediatorState(ctx, session.ID, "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("bad mediator token: got %v, want %v", err, ErrInvalidToken)
	}

	view, err := engine.MediatorState(ctx, session.ID, token)
	if err != nil {
		t.Fatalf("MediatorState: %v", err)
	}
	if !view.HasMediator {
		t.Fatalf("hasMediator not set")
	}

	// Disconnecting frees the slot for a new display.
	if _, err := engine.Control(ctx, session.ID, session.HostToken, ActionDisconnectMediator, ControlPayload{}); err != nil {
		t.Fatalf("disconnectMediator: %v", err)
	}
	if _, err := engine.MediatorState(ctx, session.ID, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("stale mediator token: got %v, want %v", err, ErrInvalidToken)
	}
	if _, err := engine.JoinMediator(ctx, session.ID); err != nil {
		t.Fatalf("rejoin after disconnect: %v", err)
	}
}

func TestEngineAnswerVisibility(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id, hostToken := session.ID, session.HostToken

	mediatorToken, err := engine.JoinMediator(ctx, id)
	if err != nil {
		t.Fatalf("JoinMediator: %v", err)
	}

	if _, err := engine.Control(ctx, id, hostToken, ActionSelectQuestion, ControlPayload{}); err != nil {
		t.Fatalf("selectQuestion: %v", err)
	}

	public, err := engine.PublicState(ctx, id, "")
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	if public.CurrentQuestion == nil || public.CurrentQuestion.Answer != "" {
		t.Fatalf("public view leaked the answer: %+v", public.CurrentQuestion)
	}
	if public.CurrentQuestion.Question != "Capital of France" {
		t.Fatalf("public question text: got %q", public.CurrentQuestion.Question)
	}

	host, err := engine.HostState(ctx, id, hostToken)
	if err != nil {
		t.Fatalf("HostState: %v", err)
	}
	if host.CurrentQuestion.Answer != "What is Paris?" {
		t.Fatalf("host answer: got %q", host.CurrentQuestion.Answer)
	}

	if _, err := engine.HostState(ctx, id, "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("bad host token: got %v, want %v", err, ErrInvalidToken)
	}

	mediator, err := engine.MediatorState(ctx, id, mediatorToken)
	if err != nil {
		t.Fatalf("MediatorState: %v", err)
	}
	if mediator.CurrentQuestion.Answer != "" {
		t.Fatalf("mediator saw the answer before reveal")
	}

	if _, err := engine.Control(ctx, id, hostToken, ActionRevealAnswer, ControlPayload{}); err != nil {
		t.Fatalf("revealAnswer: %v", err)
	}

	mediator, err = engine.MediatorState(ctx, id, mediatorToken)
	if err != nil {
		t.Fatalf("MediatorState: %v", err)
	}
	if mediator.CurrentQuestion.Answer != "What is Paris?" {
		t.Fatalf("mediator answer after reveal: got %q", mediator.CurrentQuestion.Answer)
	}
}

func TestEngineBuzzerTimeout(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id, hostToken := session.ID, session.HostToken

	ann, err := engine.JoinPlayer(ctx, id, "Ann")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := engine.Control(ctx, id, hostToken, ActionSelectQuestion, ControlPayload{}); err != nil {
		t.Fatalf("selectQuestion: %v", err)
	}
	if _, err := engine.Control(ctx, id, hostToken, ActionOpenBuzzer, ControlPayload{}); err != nil {
		t.Fatalf("openBuzzer: %v", err)
	}

	// Just inside the window.
	clock.set(1000 + 4999)
	view, err := engine.PublicState(ctx, id, "")
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	if view.BuzzerState != BuzzerOpen {
		t.Fatalf("buzzer locked early: %s", view.BuzzerState)
	}

	// Window elapsed; any read observes the lock.
	clock.set(1000 + 5000)
	view, err = engine.PublicState(ctx, id, "")
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	if view.BuzzerState != BuzzerLocked {
		t.Fatalf("buzzer not locked after window: %s", view.BuzzerState)
	}

	// Repeated maintenance calls stay settled.
	if err := engine.CheckBuzzerTimeout(ctx, id); err != nil {
		t.Fatalf("CheckBuzzerTimeout: %v", err)
	}
	if err := engine.CheckBuzzerTimeout(ctx, id); err != nil {
		t.Fatalf("CheckBuzzerTimeout: %v", err)
	}

	// A buzz racing the lazy check loses.
	if _, err := engine.Buzz(ctx, id, ann); !errors.Is(err, ErrBuzzerNotOpen) {
		t.Fatalf("buzz after timeout: got %v, want %v", err, ErrBuzzerNotOpen)
	}
}

func TestEngineControlRejections(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	cases := []struct {
		name    string
		token   string
		action  Action
		wantErr error
	}{
		{
			name:    "bad token",
			token:   "wrong",
			action:  ActionStartGame,
			wantErr: ErrInvalidToken,
		},
		{
			name:    "missing action",
			token:   session.HostToken,
			action:  "",
			wantErr: ErrMissingAction,
		},
		{
			name:    "unknown action",
			token:   session.HostToken,
			action:  "launchConfetti",
			wantErr: ErrUnknownAction,
		},
		{
			name:    "open buzzer without question",
			token:   session.HostToken,
			action:  ActionOpenBuzzer,
			wantErr: ErrNoQuestion,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Control(ctx, session.ID, tc.token, tc.action, ControlPayload{}); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Control: got %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Rejected actions leave the session unchanged.
	view, err := engine.PublicState(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	if view.Started || view.BuzzerState != BuzzerClosed {
		t.Fatalf("rejected controls mutated the session: %+v", view)
	}
}

func TestEngineEndGame(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := engine.Control(ctx, session.ID, session.HostToken, ActionEndGame, ControlPayload{})
	if err != nil {
		t.Fatalf("endGame: %v", err)
	}
	if !result.Ended {
		t.Fatalf("endGame did not report ended")
	}

	if _, err := engine.PublicState(ctx, session.ID, ""); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("state after endGame: got %v, want %v", err, ErrGameNotFound)
	}
	if _, err := engine.Buzz(ctx, session.ID, "anyone"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("buzz after endGame: got %v, want %v", err, ErrGameNotFound)
	}
	if _, err := engine.Control(ctx, session.ID, session.HostToken, ActionStartGame, ControlPayload{}); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("control after endGame: got %v, want %v", err, ErrGameNotFound)
	}
}

func TestEngineQuestionOverride(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	override, err := parseQuestionSet([]byte(`{
		"categories": [
			{
				"name": "Only",
				"questions": [
					{"value": 100, "question": "Q", "answer": "A"}
				]
			}
		]
	}`))
	if err != nil {
		t.Fatalf("parseQuestionSet: %v", err)
	}

	session, err := engine.CreateSession(ctx, override)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	view, err := engine.PublicState(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	if len(view.Categories) != 1 || view.Categories[0] != "Only" {
		t.Fatalf("override categories: got %v", view.Categories)
	}
	if len(view.Board) != 1 || len(view.Board[0]) != 1 || view.Board[0][0].Value != 100 {
		t.Fatalf("override board: got %+v", view.Board)
	}
}

func TestEngineConcurrentBuzzes(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id, hostToken := session.ID, session.HostToken

	players := make([]string, 0, 8)
	names := []string{"Ann", "Ben", "Cyd", "Dee", "Eli", "Fay", "Gus", "Hal"}
	for _, name := range names {
		playerID, err := engine.JoinPlayer(ctx, id, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		players = append(players, playerID)
	}

	if _, err := engine.Control(ctx, id, hostToken, ActionSelectQuestion, ControlPayload{}); err != nil {
		t.Fatalf("selectQuestion: %v", err)
	}
	if _, err := engine.Control(ctx, id, hostToken, ActionOpenBuzzer, ControlPayload{}); err != nil {
		t.Fatalf("openBuzzer: %v", err)
	}

	positions := make(chan int, len(players))
	for _, playerID := range players {
		go func(playerID string) {
			pos, err := engine.Buzz(ctx, id, playerID)
			if err != nil {
				t.Errorf("buzz %s: %v", playerID, err)
				positions <- 0
				return
			}
			positions <- pos
		}(playerID)
	}

	// Every buzz must land, and the reported ranks must be exactly 1..N
	// with no duplicates or gaps: lost updates would surface here.
	seen := make(map[int]bool)
	for range players {
		pos := <-positions
		if seen[pos] {
			t.Fatalf("duplicate position %d", pos)
		}
		seen[pos] = true
	}
	for i := 1; i <= len(players); i++ {
		if !seen[i] {
			t.Fatalf("missing position %d", i)
		}
	}

	view, err := engine.PublicState(ctx, id, "")
	if err != nil {
		t.Fatalf("PublicState: %v", err)
	}
	if len(view.Buzzes) != len(players) {
		t.Fatalf("buzz count: got %d, want %d", len(view.Buzzes), len(players))
	}
}
