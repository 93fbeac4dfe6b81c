package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	aicore "github.com/stake-plus/fitbet/src/ai/core"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

func validOnboarding() OnboardingInput {
	return OnboardingInput{Track: fit.TrackCut, StartWeight: 92, StartWaist: 96, Height: 182, TargetWeight: 84, TargetWaist: 88,
		Photos: [4]string{"f", "l", "r", "b"}}
}

func TestCreateChallengeValidation(t *testing.T) {
	base := CreateChallengeInput{
		ChatID: testChat, Creator: Actor{UserID: 10}, Duration: 3,
		Stake: decimal.NewFromInt(25), DisciplineThreshold: 0.8, MaxSkips: 1,
	}
	cases := []struct {
		name   string
		mutate func(in *CreateChallengeInput)
	}{
		{"no chat", func(in *CreateChallengeInput) { in.ChatID = 0 }},
		{"zero duration", func(in *CreateChallengeInput) { in.Duration = 0 }},
		{"negative stake", func(in *CreateChallengeInput) { in.Stake = decimal.NewFromInt(-1) }},
		{"sub-cent stake", func(in *CreateChallengeInput) { in.Stake = decimal.RequireFromString("10.005") }},
		{"threshold above one", func(in *CreateChallengeInput) { in.DisciplineThreshold = 1.5 }},
		{"zero threshold", func(in *CreateChallengeInput) { in.DisciplineThreshold = 0 }},
		{"negative skips", func(in *CreateChallengeInput) { in.MaxSkips = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			in := base
			tc.mutate(&in)
			_, err := h.e.CreateChallenge(h.ctx, t0, in)
			wantKind(t, err, fit.KindValidation)
		})
	}
}

func TestOneLiveChallengePerChat(t *testing.T) {
	h := newHarness(t, Config{})
	in := CreateChallengeInput{ChatID: testChat, Creator: Actor{UserID: 10}, Duration: 3, Stake: decimal.NewFromInt(25), DisciplineThreshold: 0.8}
	c, err := h.e.CreateChallenge(h.ctx, t0, in)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.e.CreateChallenge(h.ctx, t0, in)
	wantKind(t, err, fit.KindPrecondition)

	live, err := h.e.ChallengeForChat(h.ctx, testChat)
	if err != nil || live.ID != c.ID {
		t.Fatalf("ChallengeForChat = %+v, %v", live, err)
	}
	if err := h.e.OnCancelChallenge(h.ctx, t0, c.ID, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := h.e.ChallengeForChat(h.ctx, testChat); fit.KindOf(err) != fit.KindNotFound {
		t.Fatalf("after cancel: %v", err)
	}
	if _, err := h.e.CreateChallenge(h.ctx, t0, in); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
}

func TestJoinRules(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.seedChallenge(t, nil)
	actor := Actor{UserID: 10, Username: "<b>amy</b>"}

	p, err := h.e.OnParticipantJoin(h.ctx, t0, c.ID, actor)
	if err != nil {
		t.Fatal(err)
	}
	if p.Username != "amy" || p.Status != fit.ParticipantOnboarding {
		t.Fatalf("participant = %+v", p)
	}

	h.rec.reset()
	again, err := h.e.OnParticipantJoin(h.ctx, t0.Add(time.Minute), c.ID, actor)
	if err != nil || again.ID != p.ID {
		t.Fatalf("repeat join while onboarding = %+v, %v", again, err)
	}
	if len(h.rec.messagesTo(notify.User(10))) != 1 || len(h.rec.messagesTo(notify.GroupChat(testChat))) != 0 {
		t.Fatal("repeat join should only resend the onboarding prompt")
	}

	if _, err := h.e.OnOnboardingComplete(h.ctx, t0.Add(time.Hour), p.ID, validOnboarding()); err != nil {
		t.Fatal(err)
	}
	_, err = h.e.OnParticipantJoin(h.ctx, t0.Add(2*time.Hour), c.ID, actor)
	wantKind(t, err, fit.KindConflict)

	_, err = h.e.OnParticipantJoin(h.ctx, t0, 777, actor)
	wantKind(t, err, fit.KindNotFound)
}

func TestJoinBlockedByAnotherLiveChallenge(t *testing.T) {
	h := newHarness(t, Config{})
	other := h.seedChallenge(t, func(c *fit.Challenge) { c.ChatID = -2002; c.Status = fit.ChallengeActive })
	h.seedParticipant(t, other, 10, fit.ParticipantActive, nil)
	c := h.seedChallenge(t, nil)

	_, err := h.e.OnParticipantJoin(h.ctx, t0, c.ID, Actor{UserID: 10})
	wantKind(t, err, fit.KindPrecondition)

	other.Status = fit.ChallengeCompleted
	if err := h.st.SaveChallenge(h.ctx, other); err != nil {
		t.Fatal(err)
	}
	if _, err := h.e.OnParticipantJoin(h.ctx, t0, c.ID, Actor{UserID: 10}); err != nil {
		t.Fatalf("join after the other challenge ended: %v", err)
	}
}

func TestJoinClosedChallenge(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.seedChallenge(t, func(c *fit.Challenge) { c.Status = fit.ChallengeActive })
	_, err := h.e.OnParticipantJoin(h.ctx, t0, c.ID, Actor{UserID: 10})
	wantKind(t, err, fit.KindPrecondition)
}

func TestOnboardingTimeoutDropsStaleParticipants(t *testing.T) {
	h := newHarness(t, Config{OnboardingTimeout: 48 * time.Hour})
	c := h.seedChallenge(t, nil)
	stale := h.seedParticipant(t, c, 10, fit.ParticipantOnboarding, func(p *fit.Participant) { p.JoinedAt = t0.Add(-49 * time.Hour) })
	fresh := h.seedParticipant(t, c, 20, fit.ParticipantOnboarding, func(p *fit.Participant) { p.JoinedAt = t0.Add(-47 * time.Hour) })
	paid := h.seedParticipant(t, c, 30, fit.ParticipantPendingPay, func(p *fit.Participant) { p.JoinedAt = t0.Add(-100 * time.Hour) })

	if err := h.e.HandleOnboardingTimeouts(h.ctx, t0); err != nil {
		t.Fatal(err)
	}
	if got := h.participant(t, stale.ID).Status; got != fit.ParticipantDropped {
		t.Fatalf("stale status = %s", got)
	}
	if got := h.participant(t, fresh.ID).Status; got != fit.ParticipantOnboarding {
		t.Fatalf("fresh status = %s", got)
	}
	if got := h.participant(t, paid.ID).Status; got != fit.ParticipantPendingPay {
		t.Fatalf("paid status = %s", got)
	}
	if !containsText(h.rec.textsTo(notify.User(10)), "did not finish onboarding") {
		t.Fatal("dropped participant not told")
	}
	if !containsText(h.rec.textsTo(notify.GroupChat(testChat)), "@user10 was removed") {
		t.Fatal("group not told")
	}

	h.rec.reset()
	if err := h.e.HandleOnboardingTimeouts(h.ctx, t0.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if len(h.rec.sent) != 0 {
		t.Fatal("second sweep notified again")
	}
}

func TestRejoinAfterDropStartsOver(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.seedChallenge(t, nil)
	p := h.seedParticipant(t, c, 10, fit.ParticipantDropped, func(p *fit.Participant) {
		p.TotalCheckins, p.CompletedCheckins, p.SkippedCheckins = 2, 1, 1
		p.GoalValidation = "realistic"
	})
	if err := h.st.UpsertPayment(h.ctx, &fit.Payment{ParticipantID: p.ID, Status: fit.PaymentMarkedPaid}); err != nil {
		t.Fatal(err)
	}

	later := t0.Add(5 * time.Hour)
	got, err := h.e.OnParticipantJoin(h.ctx, later, c.ID, Actor{UserID: 10, FirstName: "Amy"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != p.ID || got.Status != fit.ParticipantOnboarding || !got.JoinedAt.Equal(later) {
		t.Fatalf("rejoined = %+v", got)
	}
	if got.TotalCheckins != 0 || got.StartWeight != 0 || got.Track != "" || got.GoalValidation != "" || got.FirstName != "Amy" {
		t.Fatalf("rejoin kept stale data: %+v", got)
	}
	if _, err := h.st.GetPayment(h.ctx, p.ID); !errors.Is(err, fit.ErrNotFound) {
		t.Fatalf("payment survived rejoin: %v", err)
	}
}

func TestOnboardingCompleteRules(t *testing.T) {
	adv := &fakeAdvisor{goal: aicore.GoalValidation{Verdict: aicore.GoalTooAggressive, Feedback: "Aim for 0.5 kg a week."}}
	h := newHarness(t, Config{}, WithAdvisor(adv))
	c := h.seedChallenge(t, nil)
	p := h.seedParticipant(t, c, 10, fit.ParticipantOnboarding, nil)

	bad := validOnboarding()
	bad.Track = "shred"
	_, err := h.e.OnOnboardingComplete(h.ctx, t0, p.ID, bad)
	wantKind(t, err, fit.KindValidation)
	bad = validOnboarding()
	bad.Height = 230
	_, err = h.e.OnOnboardingComplete(h.ctx, t0, p.ID, bad)
	wantKind(t, err, fit.KindValidation)
	if h.participant(t, p.ID).Status != fit.ParticipantOnboarding {
		t.Fatal("invalid input changed the participant")
	}

	got, err := h.e.OnOnboardingComplete(h.ctx, t0, p.ID, validOnboarding())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != fit.ParticipantPendingPay || got.StartPhotoBack != "b" || got.OnboardingCompletedAt == nil {
		t.Fatalf("participant = %+v", got)
	}
	stored := h.participant(t, p.ID)
	if stored.GoalValidation != string(aicore.GoalTooAggressive) || stored.GoalFeedback == "" || adv.goals != 1 {
		t.Fatalf("goal validation not stored: %+v", stored)
	}
	pay, err := h.st.GetPayment(h.ctx, p.ID)
	if err != nil || pay.Status != fit.PaymentPending {
		t.Fatalf("payment = %+v, %v", pay, err)
	}
	if owner, err := h.e.OnboardingFor(h.ctx, 10); err == nil {
		t.Fatalf("OnboardingFor after completion = %+v", owner)
	}

	_, err = h.e.OnOnboardingComplete(h.ctx, t0, p.ID, validOnboarding())
	wantKind(t, err, fit.KindPrecondition)
}

func TestCancelChallenge(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.seedChallenge(t, nil)
	h.seedParticipant(t, c, 10, fit.ParticipantPendingPay, nil)
	h.seedParticipant(t, c, 20, fit.ParticipantPendingPay, nil)
	el, err := h.e.OnStartElection(h.ctx, t0, c.ID, 10)
	if err != nil {
		t.Fatal(err)
	}

	wantKind(t, h.e.OnCancelChallenge(h.ctx, t0, c.ID, 20), fit.KindPrecondition)
	if err := h.e.OnCancelChallenge(h.ctx, t0, c.ID, 10); err != nil {
		t.Fatal(err)
	}
	if h.challenge(t, c.ID).Status != fit.ChallengeCancelled {
		t.Fatal("challenge not cancelled")
	}
	stored, _ := h.st.GetElection(h.ctx, el.ID)
	if stored.Status != fit.ElectionCancelled {
		t.Fatalf("election status = %s", stored.Status)
	}
	wantKind(t, h.e.OnCancelChallenge(h.ctx, t0, c.ID, 10), fit.KindPrecondition)
}
