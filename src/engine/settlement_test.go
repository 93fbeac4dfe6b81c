package engine

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDisciplineScore(t *testing.T) {
	cases := []struct {
		completed, total int
		want             float64
	}{
		{0, 0, 100},
		{2, 2, 100},
		{1, 2, 50},
		{0, 3, 0},
	}
	for _, tc := range cases {
		if got := DisciplineScore(tc.completed, tc.total); !near(got, tc.want) {
			t.Errorf("DisciplineScore(%d, %d) = %v, want %v", tc.completed, tc.total, got, tc.want)
		}
	}
}

func TestGoalAchievement(t *testing.T) {
	cases := []struct {
		name                      string
		track                     fit.Track
		sw, swa, tw, twa, cw, cwa float64
		want                      float64
	}{
		{"cut on target", fit.TrackCut, 100, 100, 90, 90, 90, 90, 100},
		{"cut overshoot", fit.TrackCut, 100, 100, 90, 90, 85, 85, 150},
		{"cut regression floors at zero", fit.TrackCut, 100, 100, 90, 90, 105, 104, 0},
		{"cut weight only", fit.TrackCut, 100, 100, 90, 100, 95, 100, 35},
		{"bulk halfway", fit.TrackBulk, 70, 80, 80, 80, 75, 90, 0.7*50 + 30},
		{"bulk lost weight", fit.TrackBulk, 70, 80, 80, 80, 65, 80, 30},
		{"bulk target below start", fit.TrackBulk, 70, 80, 60, 80, 75, 80, 30},
		{"unknown track", "", 70, 80, 60, 80, 75, 80, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := GoalAchievement(tc.track, tc.sw, tc.swa, tc.tw, tc.twa, tc.cw, tc.cwa)
			if !near(got, tc.want) {
				t.Fatalf("GoalAchievement = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScoreParticipantWinnerRule(t *testing.T) {
	c := &fit.Challenge{DisciplineThreshold: 0.8}
	base := fit.Participant{UserID: 1, Track: fit.TrackCut, StartWeight: 100, StartWaist: 100, TargetWeight: 90, TargetWaist: 90,
		Status: fit.ParticipantActive, TotalCheckins: 5, CompletedCheckins: 4}
	onTarget := &fit.Checkin{Weight: 90, Waist: 90}

	cases := []struct {
		name   string
		mutate func(p *fit.Participant)
		latest *fit.Checkin
		winner bool
	}{
		{"meets both bars", nil, onTarget, true},
		{"discipline just below", func(p *fit.Participant) { p.CompletedCheckins = 3 }, onTarget, false},
		{"goal short", nil, &fit.Checkin{Weight: 91, Waist: 90}, false},
		{"no check-ins keeps start metrics", nil, nil, false},
		{"disqualified never wins", func(p *fit.Participant) { p.Status = fit.ParticipantDisqualified }, onTarget, false},
		{"completed can win", func(p *fit.Participant) { p.Status = fit.ParticipantCompleted }, onTarget, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			if tc.mutate != nil {
				tc.mutate(&p)
			}
			s := ScoreParticipant(c, &p, tc.latest)
			if s.Winner != tc.winner {
				t.Fatalf("winner = %v, want %v (%+v)", s.Winner, tc.winner, s)
			}
			if !near(s.Total, 0.7*s.GoalAchievement+0.3*s.Discipline) {
				t.Fatalf("total = %v", s.Total)
			}
		})
	}
}

func scoresFor(winners ...bool) []Score {
	out := make([]Score, len(winners))
	for i, w := range winners {
		out[i] = Score{UserID: int64(i + 1), Winner: w}
	}
	return out
}

func sumPayouts(scores []Score) decimal.Decimal {
	total := decimal.Zero
	for _, s := range scores {
		total = total.Add(s.Payout)
	}
	return total
}

func TestAssignPayouts(t *testing.T) {
	cases := []struct {
		name    string
		stake   string
		winners []bool
		want    []string
	}{
		{"one winner takes the pot", "100", []bool{true, false}, []string{"200", "0"}},
		{"nobody wins refunds", "100", []bool{false, false}, []string{"100", "100"}},
		{"everyone wins refunds", "100", []bool{true, true}, []string{"100", "100"}},
		{"even split", "50", []bool{true, false, true, false}, []string{"100", "0", "100", "0"}},
		{"cent remainder to lowest identity", "100", []bool{true, true, true, false}, []string{"133.34", "133.33", "133.33", "0"}},
		{"two leftover cents", "0.10", []bool{true, true, true, false, false}, []string{"0.17", "0.17", "0.16", "0", "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stake := decimal.RequireFromString(tc.stake)
			scores := scoresFor(tc.winners...)
			AssignPayouts(stake, scores)
			for i, want := range tc.want {
				if !scores[i].Payout.Equal(decimal.RequireFromString(want)) {
					t.Errorf("payout[%d] = %s, want %s", i, scores[i].Payout, want)
				}
			}
			pool := stake.Mul(decimal.NewFromInt(int64(len(scores))))
			if !sumPayouts(scores).Equal(pool) {
				t.Fatalf("payouts sum to %s, want %s", sumPayouts(scores), pool)
			}
		})
	}
}

func TestRankScores(t *testing.T) {
	scores := []Score{{UserID: 3, Total: 50}, {UserID: 2, Total: 80}, {UserID: 1, Total: 50}}
	RankScores(scores)
	got := []int64{scores[0].UserID, scores[1].UserID, scores[2].UserID}
	if got[0] != 2 || got[1] != 1 || got[2] != 3 {
		t.Fatalf("order = %v", got)
	}
}

func TestSettlementPaysTheDisciplinedWinner(t *testing.T) {
	h := newHarness(t, Config{})
	c, ps := h.activeChallenge(t, 6*time.Hour, 5, 10, 20)
	leader, slacker := ps[0], ps[1]
	for _, p := range []*fit.Participant{leader, slacker} {
		stored := h.participant(t, p.ID)
		stored.TotalCheckins = 2
		stored.CompletedCheckins = 2
		if p == slacker {
			stored.CompletedCheckins, stored.SkippedCheckins = 1, 1
		}
		if err := h.st.SaveParticipant(h.ctx, stored); err != nil {
			t.Fatal(err)
		}
	}
	ws := h.seedWindows(t, c, fit.CheckinWindow{WindowNumber: 1, OpensAt: t0.Add(time.Hour), ClosesAt: t0.Add(2 * time.Hour), Status: fit.WindowClosed})
	for _, ck := range []fit.Checkin{
		{ParticipantID: leader.ID, WindowID: ws[0].ID, ChallengeID: c.ID, Weight: 85, Waist: 85, SubmittedAt: t0.Add(90 * time.Minute)},
		{ParticipantID: slacker.ID, WindowID: ws[0].ID, ChallengeID: c.ID, Weight: 88, Waist: 88, SubmittedAt: t0.Add(90 * time.Minute)},
	} {
		ck := ck
		if err := h.st.CreateCheckin(h.ctx, &ck); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.e.FinalizeEndedChallenges(h.ctx, t0.Add(5*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if h.challenge(t, c.ID).Status != fit.ChallengeActive {
		t.Fatal("settled before the end")
	}

	preview, err := h.e.Standings(h.ctx, c.ID)
	if err != nil || len(preview) != 2 || preview[0].UserID != 10 {
		t.Fatalf("Standings = %+v, %v", preview, err)
	}

	if err := h.e.FinalizeEndedChallenges(h.ctx, t0.Add(6*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if h.challenge(t, c.ID).Status != fit.ChallengeCompleted {
		t.Fatal("challenge not completed")
	}
	for _, p := range ps {
		if got := h.participant(t, p.ID).Status; got != fit.ParticipantCompleted {
			t.Fatalf("participant %d status = %s", p.UserID, got)
		}
	}

	group := h.rec.textsTo(notify.GroupChat(testChat))
	if !containsText(group, "1. @user10: 135.0 points, goal 150.0%, discipline 100.0%, payout 200.00 (winner)") {
		t.Fatalf("ranking = %q", group)
	}
	if !containsText(group, "2. @user20:") || !containsText(group, "payout 0.00") {
		t.Fatalf("ranking = %q", group)
	}
	if !containsText(h.rec.textsTo(notify.User(10)), "Congratulations") || !containsText(h.rec.textsTo(notify.User(20)), "did not meet") {
		t.Fatal("personal results missing")
	}

	sent := len(h.rec.sent)
	if err := h.e.FinalizeEndedChallenges(h.ctx, t0.Add(7*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if len(h.rec.sent) != sent {
		t.Fatal("challenge settled twice")
	}
}

func TestSettlementClosesOpenWindowsAtTheEnd(t *testing.T) {
	h := newHarness(t, Config{})
	c, ps := h.activeChallenge(t, 6*time.Hour, 5, 10)
	ws := h.seedWindows(t, c, fit.CheckinWindow{WindowNumber: 1, OpensAt: t0.Add(5 * time.Hour), ClosesAt: t0.Add(7 * time.Hour), Status: fit.WindowScheduled})
	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(5*time.Hour)); err != nil {
		t.Fatal(err)
	}

	h.rec.reset()
	if err := h.e.FinalizeEndedChallenges(h.ctx, t0.Add(8*time.Hour)); err != nil {
		t.Fatal(err)
	}
	w := h.window(t, ws[0].ID)
	if w.Status != fit.WindowClosed || !w.ClosesAt.Equal(t0.Add(6*time.Hour)) {
		t.Fatalf("window = %s closing %s", w.Status, w.ClosesAt.Sub(t0))
	}
	p := h.participant(t, ps[0].ID)
	if p.TotalCheckins != 1 || p.SkippedCheckins != 1 || p.Status != fit.ParticipantCompleted {
		t.Fatalf("participant = %+v", p)
	}
	if containsText(h.rec.textsTo(notify.GroupChat(testChat)), "Check-in #1 closed") {
		t.Fatal("forced close posted a roster")
	}
}

func TestSettlementWithoutConfirmedStakes(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.seedChallenge(t, func(c *fit.Challenge) {
		c.Status = fit.ChallengeActive
		c.StartedAt = timePtr(t0)
		c.EndsAt = timePtr(t0.Add(time.Hour))
	})
	h.seedParticipant(t, c, 10, fit.ParticipantDropped, nil)

	if err := h.e.FinalizeEndedChallenges(h.ctx, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if h.challenge(t, c.ID).Status != fit.ChallengeCompleted {
		t.Fatal("challenge not completed")
	}
	if !containsText(h.rec.textsTo(notify.GroupChat(testChat)), "nothing to settle") {
		t.Fatal("missing empty settlement notice")
	}
}

func TestDisqualifiedParticipantForfeitsStake(t *testing.T) {
	h := newHarness(t, Config{})
	c, ps := h.activeChallenge(t, 6*time.Hour, 0, 10, 20)
	dq := h.participant(t, ps[1].ID)
	dq.Status = fit.ParticipantDisqualified
	dq.TotalCheckins, dq.SkippedCheckins = 1, 1
	if err := h.st.SaveParticipant(h.ctx, dq); err != nil {
		t.Fatal(err)
	}
	winner := h.participant(t, ps[0].ID)
	winner.TotalCheckins, winner.CompletedCheckins = 1, 1
	if err := h.st.SaveParticipant(h.ctx, winner); err != nil {
		t.Fatal(err)
	}
	if err := h.st.CreateCheckin(h.ctx, &fit.Checkin{ParticipantID: winner.ID, WindowID: 1, ChallengeID: c.ID, Weight: 90, Waist: 90, SubmittedAt: t0}); err != nil {
		t.Fatal(err)
	}

	scores, err := h.e.Standings(h.ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 2 {
		t.Fatalf("%d scores", len(scores))
	}
	for _, s := range scores {
		switch s.UserID {
		case 10:
			if !s.Winner || !s.Payout.Equal(decimal.NewFromInt(200)) {
				t.Fatalf("winner score = %+v", s)
			}
		case 20:
			if s.Winner || !s.Payout.IsZero() {
				t.Fatalf("disqualified score = %+v", s)
			}
		}
	}
	if _, err := h.e.Standings(h.ctx, 4040); fit.KindOf(err) != fit.KindNotFound {
		t.Fatalf("unknown challenge: %v", err)
	}
}
