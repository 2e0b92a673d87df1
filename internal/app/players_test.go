package app_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"toohak-session-service/internal/domain"
)

func openFirstQuestion(t *testing.T, f *fixture, sessionID int) {
	t.Helper()
	mustAction(t, f, sessionID, domain.ActionNextQuestion)
	mustAction(t, f, sessionID, domain.ActionSkipCountdown)
}

func TestJoinNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f, 0)

	alice, err := f.service.Join(ctx, id, "alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, err := f.service.Join(ctx, id, "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if alice == bob {
		t.Fatalf("player ids must be unique, both got %d", alice)
	}

	if _, err := f.service.Join(ctx, id, "alice"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("duplicate name should be rejected, got %v", err)
	}
	if _, err := f.service.Join(ctx, id+100, "carol"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown session should be not found, got %v", err)
	}
}

func TestJoinGeneratedName(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)

	playerID, err := f.service.Join(context.Background(), id, "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	status, _ := f.service.SessionStatus(context.Background(), ownerToken, id)
	if len(status.Players) != 1 {
		t.Fatalf("expected one player, got %v", status.Players)
	}
	name := status.Players[0]
	if !regexp.MustCompile(`^[a-z]{5}[0-9]{3}$`).MatchString(name) {
		t.Fatalf("generated name %q does not match 5 letters + 3 digits", name)
	}
	seenLetter := map[rune]bool{}
	for _, r := range name[:5] {
		if seenLetter[r] {
			t.Fatalf("generated name %q repeats letter %c", name, r)
		}
		seenLetter[r] = true
	}
	seenDigit := map[rune]bool{}
	for _, r := range name[5:] {
		if seenDigit[r] {
			t.Fatalf("generated name %q repeats digit %c", name, r)
		}
		seenDigit[r] = true
	}

	ps, err := f.service.PlayerStatus(context.Background(), playerID)
	if err != nil {
		t.Fatalf("player status: %v", err)
	}
	if ps.State != domain.StateLobby || ps.NumQuestions != 2 || ps.AtQuestion != 0 {
		t.Fatalf("unexpected player status %+v", ps)
	}
}

func TestJoinOnlyInLobby(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)
	openFirstQuestion(t, f, id)

	if _, err := f.service.Join(context.Background(), id, "late"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("joining after LOBBY should fail, got %v", err)
	}
}

func TestAutoStartThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f, 2)

	if _, err := f.service.Join(ctx, id, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if state, _ := sessionState(t, f, id); state != domain.StateLobby {
		t.Fatalf("one player should not auto-start, got %s", state)
	}

	if _, err := f.service.Join(ctx, id, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if state, at := sessionState(t, f, id); state != domain.StateQuestionCountdown || at != 1 {
		t.Fatalf("reaching autoStartNum should start the countdown, got %s/%d", state, at)
	}
}

func TestCurrentQuestionView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f, 0)
	playerID, _ := f.service.Join(ctx, id, "alice")

	if _, err := f.service.CurrentQuestion(ctx, playerID, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("question read before open should fail, got %v", err)
	}

	openFirstQuestion(t, f, id)

	view, err := f.service.CurrentQuestion(ctx, playerID, 1)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	if view.QuestionID != 101 || view.DurationSeconds != 5 || view.Points != 10 {
		t.Fatalf("unexpected question view %+v", view)
	}
	if len(view.Answers) != 2 {
		t.Fatalf("expected 2 answer options, got %d", len(view.Answers))
	}

	if _, err := f.service.CurrentQuestion(ctx, playerID, 2); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("non-current position should fail, got %v", err)
	}
	if _, err := f.service.CurrentQuestion(ctx, playerID, 3); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("out-of-range position should fail, got %v", err)
	}
	if _, err := f.service.CurrentQuestion(ctx, playerID+100, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown player should be not found, got %v", err)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f, 0)
	playerID, _ := f.service.Join(ctx, id, "alice")

	if err := f.service.SubmitAnswer(ctx, playerID, 1, []int{2}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("submit before open should fail, got %v", err)
	}

	openFirstQuestion(t, f, id)

	cases := []struct {
		name      string
		position  int
		answerIDs []int
	}{
		{"empty set", 1, []int{}},
		{"duplicate ids", 1, []int{2, 2}},
		{"invalid id", 1, []int{9}},
		{"position zero", 0, []int{2}},
		{"position beyond quiz", 3, []int{2}},
		{"position not current", 2, []int{4}},
	}
	for _, tc := range cases {
		if err := f.service.SubmitAnswer(ctx, playerID, tc.position, tc.answerIDs); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	if err := f.service.SubmitAnswer(ctx, playerID+100, 1, []int{2}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown player should be not found, got %v", err)
	}

	if err := f.service.SubmitAnswer(ctx, playerID, 1, []int{2}); err != nil {
		t.Fatalf("valid submit failed: %v", err)
	}
}

func TestSubmitAnswerExactSetCorrectness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f, 0)
	playerID, _ := f.service.Join(ctx, id, "alice")

	// Question 2 has two correct answers (4 and 5).
	mustAction(t, f, id, domain.ActionNextQuestion)
	mustAction(t, f, id, domain.ActionSkipCountdown)
	mustAction(t, f, id, domain.ActionGoToAnswer)
	mustAction(t, f, id, domain.ActionNextQuestion)
	mustAction(t, f, id, domain.ActionSkipCountdown)

	cases := []struct {
		name      string
		answerIDs []int
		correct   bool
	}{
		{"exact correct set", []int{5, 4}, true},
		{"subset of correct", []int{4}, false},
		{"superset with wrong", []int{3, 4, 5}, false},
		{"wrong only", []int{3}, false},
	}
	for _, tc := range cases {
		if err := f.service.SubmitAnswer(ctx, playerID, 2, tc.answerIDs); err != nil {
			t.Fatalf("%s: submit: %v", tc.name, err)
		}
		var recorded bool
		_ = f.store.View(id, func(sess *domain.Session) error {
			answers := sess.QuestionSessions[1].PlayerAnswers
			recorded = answers[len(answers)-1].Correct
			return nil
		})
		if recorded != tc.correct {
			t.Errorf("%s: correctness = %v, want %v", tc.name, recorded, tc.correct)
		}
	}
}

func TestResubmissionReplacesTimeContribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f, 0)
	playerID, _ := f.service.Join(ctx, id, "alice")
	openFirstQuestion(t, f, id)

	f.clock.Advance(2 * time.Second)
	if err := f.service.SubmitAnswer(ctx, playerID, 1, []int{2}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.clock.Advance(3 * time.Second)
	if err := f.service.SubmitAnswer(ctx, playerID, 1, []int{1}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	err := f.store.View(id, func(sess *domain.Session) error {
		qs := sess.QuestionSessions[0]
		if len(qs.PlayerAnswers) != 1 {
			t.Fatalf("resubmission must replace, got %d entries", len(qs.PlayerAnswers))
		}
		entry := qs.PlayerAnswers[0]
		if entry.Correct {
			t.Fatalf("latest submission wins: expected incorrect")
		}
		if entry.TimeTakenSeconds != 5 {
			t.Fatalf("entry time = %v, want 5", entry.TimeTakenSeconds)
		}
		player, _ := sess.FindPlayer(playerID)
		if player.TimeTakenSeconds != 5 {
			t.Fatalf("cumulative time = %v, want 5 (no double counting)", player.TimeTakenSeconds)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestPlayerQuestionResultWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f, 0)
	playerID, _ := f.service.Join(ctx, id, "alice")
	openFirstQuestion(t, f, id)

	f.clock.Advance(time.Second)
	if err := f.service.SubmitAnswer(ctx, playerID, 1, []int{2}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := f.service.PlayerQuestionResult(ctx, playerID, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("results before ANSWER_SHOW should fail, got %v", err)
	}

	mustAction(t, f, id, domain.ActionGoToAnswer)
	result, err := f.service.PlayerQuestionResult(ctx, playerID, 1)
	if err != nil {
		t.Fatalf("question result: %v", err)
	}
	if result.PercentCorrect != 100 || len(result.PlayersCorrectList) != 1 || result.PlayersCorrectList[0] != "alice" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.AverageAnswerTime != 1 {
		t.Fatalf("average answer time = %d, want 1", result.AverageAnswerTime)
	}

	if _, err := f.service.PlayerQuestionResult(ctx, playerID, 2); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("future question result should fail, got %v", err)
	}
}
