package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store/memstore"
)

// flakyWrites fails the first participant save and the first window close.
type flakyWrites struct {
	*memstore.Store
	saveFailed, closeFailed bool
}

func (f *flakyWrites) SaveParticipant(ctx context.Context, p *fit.Participant) error {
	if !f.saveFailed {
		f.saveFailed = true
		return errors.New("db down")
	}
	return f.Store.SaveParticipant(ctx, p)
}

func (f *flakyWrites) CloseWindow(ctx context.Context, w *fit.CheckinWindow, tallied []fit.Participant) error {
	if !f.closeFailed {
		f.closeFailed = true
		return errors.New("db down")
	}
	return f.Store.CloseWindow(ctx, w, tallied)
}

func TestGenerateWindows(t *testing.T) {
	day := 24 * time.Hour
	cases := []struct {
		name           string
		length         time.Duration
		period, window time.Duration
		wantOpens      []time.Duration
		wantCloses     []time.Duration
	}{
		{
			name:   "hourly over six hours",
			length: 6 * time.Hour, period: time.Hour, window: 30 * time.Minute,
			wantOpens:  []time.Duration{1 * time.Hour, 2 * time.Hour, 3 * time.Hour, 4 * time.Hour, 5 * time.Hour},
			wantCloses: []time.Duration{90 * time.Minute, 150 * time.Minute, 210 * time.Minute, 270 * time.Minute, 330 * time.Minute},
		},
		{
			name:   "fortnightly over thirty days",
			length: 30 * day, period: 14 * day, window: 48 * time.Hour,
			wantOpens:  []time.Duration{14 * day, 28 * day},
			wantCloses: []time.Duration{16 * day, 30 * day},
		},
		{
			name:   "last window clipped to the end",
			length: 29 * day, period: 14 * day, window: 48 * time.Hour,
			wantOpens:  []time.Duration{14 * day, 28 * day},
			wantCloses: []time.Duration{16 * day, 29 * day},
		},
		{
			name:   "window capped at period",
			length: 3 * time.Hour, period: time.Hour, window: 2 * time.Hour,
			wantOpens:  []time.Duration{time.Hour, 2 * time.Hour},
			wantCloses: []time.Duration{2 * time.Hour, 3 * time.Hour},
		},
		{
			name:   "challenge shorter than a period",
			length: 10 * day, period: 14 * day, window: 48 * time.Hour,
		},
		{
			name:   "zero period falls back to window duration",
			length: 3 * time.Hour, period: 0, window: time.Hour,
			wantOpens:  []time.Duration{time.Hour, 2 * time.Hour},
			wantCloses: []time.Duration{2 * time.Hour, 3 * time.Hour},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := GenerateWindows(t0, t0.Add(tc.length), tc.period, tc.window)
			if len(got) != len(tc.wantOpens) {
				t.Fatalf("got %d windows, want %d", len(got), len(tc.wantOpens))
			}
			for i, w := range got {
				if w.WindowNumber != i+1 {
					t.Errorf("window %d numbered %d", i, w.WindowNumber)
				}
				if w.Status != fit.WindowScheduled {
					t.Errorf("window %d status %s", i, w.Status)
				}
				if !w.OpensAt.Equal(t0.Add(tc.wantOpens[i])) || !w.ClosesAt.Equal(t0.Add(tc.wantCloses[i])) {
					t.Errorf("window %d = [%s, %s]", i+1, w.OpensAt.Sub(t0), w.ClosesAt.Sub(t0))
				}
				if i > 0 && w.OpensAt.Before(got[i-1].ClosesAt) {
					t.Errorf("window %d overlaps its predecessor", i+1)
				}
			}
		})
	}
}

// activeChallenge seeds a running challenge with the given users active.
func (h *harness) activeChallenge(t *testing.T, length time.Duration, maxSkips int, users ...int64) (*fit.Challenge, []*fit.Participant) {
	t.Helper()
	c := h.seedChallenge(t, func(c *fit.Challenge) {
		c.Status = fit.ChallengeActive
		c.Duration = int(length / time.Hour)
		c.MaxSkips = maxSkips
		c.StartedAt = timePtr(t0)
		c.EndsAt = timePtr(t0.Add(length))
		c.BankHolderID = int64Ptr(users[0])
	})
	var ps []*fit.Participant
	for _, u := range users {
		ps = append(ps, h.seedParticipant(t, c, u, fit.ParticipantActive, nil))
	}
	return c, ps
}

func (h *harness) seedWindows(t *testing.T, c *fit.Challenge, ws ...fit.CheckinWindow) []fit.CheckinWindow {
	t.Helper()
	if err := h.st.ReplaceWindows(h.ctx, c.ID, ws); err != nil {
		t.Fatalf("seed windows: %v", err)
	}
	return ws
}

func (h *harness) window(t *testing.T, id uint64) *fit.CheckinWindow {
	t.Helper()
	w, err := h.st.GetWindow(h.ctx, id)
	if err != nil {
		t.Fatalf("get window %d: %v", id, err)
	}
	return w
}

func TestWindowCycleTalliesEveryActiveParticipantOnce(t *testing.T) {
	h := newHarness(t, Config{CheckinPeriod: time.Hour, WindowDuration: 30 * time.Minute})
	c, ps := h.activeChallenge(t, 6*time.Hour, 0, 10, 20)
	ws := h.seedWindows(t, c, GenerateWindows(t0, t0.Add(6*time.Hour), time.Hour, 30*time.Minute)...)
	first := ws[0]

	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(59*time.Minute)); err != nil {
		t.Fatalf("early open: %v", err)
	}
	if h.window(t, first.ID).Status != fit.WindowScheduled {
		t.Fatal("window opened before its time")
	}

	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(time.Hour)); err != nil {
		t.Fatalf("OpenCheckinWindows: %v", err)
	}
	if h.window(t, first.ID).Status != fit.WindowOpen {
		t.Fatal("window 1 not open")
	}
	if !h.rec.hasActionTo(notify.GroupChat(testChat), fit.CheckinData(first.ID)) {
		t.Fatal("group announcement lacks the check-in action")
	}
	for _, p := range ps {
		if !h.rec.hasActionTo(notify.User(p.UserID), fit.CheckinData(first.ID)) {
			t.Fatalf("participant %d not notified", p.UserID)
		}
	}

	submitAt := t0.Add(70 * time.Minute)
	if _, err := h.e.OnCheckinRequested(h.ctx, submitAt, first.ID, 10); err != nil {
		t.Fatalf("OnCheckinRequested: %v", err)
	}
	if _, err := h.e.OnCheckinSubmitted(h.ctx, submitAt, CheckinInput{WindowID: first.ID, UserID: 10, Weight: 95, Waist: 96}); err != nil {
		t.Fatalf("OnCheckinSubmitted: %v", err)
	}
	if p := h.participant(t, ps[0].ID); p.TotalCheckins != 0 || p.CompletedCheckins != 0 {
		t.Fatalf("counters moved before close: %+v", p)
	}

	h.rec.reset()
	if err := h.e.CloseCheckinWindows(h.ctx, t0.Add(90*time.Minute)); err != nil {
		t.Fatalf("CloseCheckinWindows: %v", err)
	}
	if h.window(t, first.ID).Status != fit.WindowClosed {
		t.Fatal("window 1 not closed")
	}

	p1, p2 := h.participant(t, ps[0].ID), h.participant(t, ps[1].ID)
	if p1.TotalCheckins != 1 || p1.CompletedCheckins != 1 || p1.SkippedCheckins != 0 {
		t.Fatalf("p1 counters = %d/%d/%d", p1.TotalCheckins, p1.CompletedCheckins, p1.SkippedCheckins)
	}
	if p2.TotalCheckins != 1 || p2.CompletedCheckins != 0 || p2.SkippedCheckins != 1 {
		t.Fatalf("p2 counters = %d/%d/%d", p2.TotalCheckins, p2.CompletedCheckins, p2.SkippedCheckins)
	}
	if p1.TotalCheckins != p1.CompletedCheckins+p1.SkippedCheckins || p2.TotalCheckins != p2.CompletedCheckins+p2.SkippedCheckins {
		t.Fatal("total must equal completed plus skipped")
	}
	if p1.PendingCheckinWindowID != nil {
		t.Fatal("pending marker survived close")
	}
	if p2.Status != fit.ParticipantDisqualified {
		t.Fatalf("p2 status = %s, want disqualified", p2.Status)
	}

	group := h.rec.textsTo(notify.GroupChat(testChat))
	if !containsText(group, "Submitted: @user10") || !containsText(group, "Skipped: @user20") || !containsText(group, "Disqualified: @user20") {
		t.Fatalf("group roster = %q", group)
	}
	if !containsText(h.rec.textsTo(notify.User(20)), "disqualified") {
		t.Fatal("disqualified participant not told")
	}
	if len(h.rec.edits) != 3 {
		t.Fatalf("stripped %d messages, want 3", len(h.rec.edits))
	}
	for _, ed := range h.rec.edits {
		if ed.actions != nil {
			t.Fatalf("edit kept actions: %+v", ed)
		}
	}

	// Disqualification is final: later windows leave p2 untouched.
	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("open window 2: %v", err)
	}
	if err := h.e.CloseCheckinWindows(h.ctx, t0.Add(150*time.Minute)); err != nil {
		t.Fatalf("close window 2: %v", err)
	}
	p2 = h.participant(t, ps[1].ID)
	if p2.Status != fit.ParticipantDisqualified || p2.TotalCheckins != 1 {
		t.Fatalf("disqualified participant changed: %+v", p2)
	}
	if _, err := h.e.OnCheckinRequested(h.ctx, t0.Add(3*time.Hour), ws[2].ID, 20); err == nil {
		t.Fatal("disqualified participant could start a check-in")
	}
}

func TestOpeningNextWindowRetractsPreviousNotification(t *testing.T) {
	h := newHarness(t, Config{})
	c, _ := h.activeChallenge(t, 6*time.Hour, 5, 10)
	ws := h.seedWindows(t, c,
		fit.CheckinWindow{WindowNumber: 1, OpensAt: t0.Add(time.Hour), ClosesAt: t0.Add(90 * time.Minute), Status: fit.WindowScheduled},
		fit.CheckinWindow{WindowNumber: 2, OpensAt: t0.Add(2 * time.Hour), ClosesAt: t0.Add(150 * time.Minute), Status: fit.WindowScheduled},
	)
	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := h.e.CloseCheckinWindows(h.ctx, t0.Add(90*time.Minute)); err != nil {
		t.Fatal(err)
	}
	firstGroup := h.rec.messagesTo(notify.GroupChat(testChat))[0].id

	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, id := range h.rec.deletes {
		if id == firstGroup {
			found = true
		}
	}
	if !found {
		t.Fatalf("group message %s not retracted; deletes = %v", firstGroup, h.rec.deletes)
	}
	rec, err := h.st.GetNotification(h.ctx, fit.NotificationGroup, c.ID)
	if err != nil || rec.WindowID != ws[1].ID {
		t.Fatalf("tracked notification = %+v, %v", rec, err)
	}
}

func TestOpeningForceClosesOverlappingPredecessor(t *testing.T) {
	h := newHarness(t, Config{})
	c, ps := h.activeChallenge(t, 6*time.Hour, 5, 10)
	ws := h.seedWindows(t, c,
		fit.CheckinWindow{WindowNumber: 1, OpensAt: t0.Add(time.Hour), ClosesAt: t0.Add(3 * time.Hour), Status: fit.WindowScheduled},
		fit.CheckinWindow{WindowNumber: 2, OpensAt: t0.Add(2 * time.Hour), ClosesAt: t0.Add(4 * time.Hour), Status: fit.WindowScheduled},
	)
	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	h.rec.reset()
	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	w1, w2 := h.window(t, ws[0].ID), h.window(t, ws[1].ID)
	if w1.Status != fit.WindowClosed || w2.Status != fit.WindowOpen {
		t.Fatalf("statuses = %s, %s", w1.Status, w2.Status)
	}
	if !w1.ClosesAt.Equal(t0.Add(2 * time.Hour)) {
		t.Fatalf("window 1 not clamped to its successor: closes %s", w1.ClosesAt.Sub(t0))
	}
	if containsText(h.rec.textsTo(notify.GroupChat(testChat)), "closed") {
		t.Fatal("forced close posted a roster")
	}
	if p := h.participant(t, ps[0].ID); p.TotalCheckins != 1 || p.SkippedCheckins != 1 {
		t.Fatalf("forced close did not tally: %+v", p)
	}
	open, _ := h.st.ListWindows(h.ctx, windowsOf(c.ID))
	n := 0
	for _, w := range open {
		if w.Status == fit.WindowOpen {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("%d windows open at once", n)
	}
}

func TestOneSweepClampsEarlierWindowToLaterOpening(t *testing.T) {
	h := newHarness(t, Config{})
	c, ps := h.activeChallenge(t, 6*time.Hour, 5, 10)
	ws := h.seedWindows(t, c,
		fit.CheckinWindow{WindowNumber: 1, OpensAt: t0.Add(time.Hour), ClosesAt: t0.Add(3 * time.Hour), Status: fit.WindowScheduled},
		fit.CheckinWindow{WindowNumber: 2, OpensAt: t0.Add(2 * time.Hour), ClosesAt: t0.Add(4 * time.Hour), Status: fit.WindowScheduled},
	)
	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	w1, w2 := h.window(t, ws[0].ID), h.window(t, ws[1].ID)
	if w1.Status != fit.WindowClosed || w2.Status != fit.WindowOpen {
		t.Fatalf("statuses = %s, %s", w1.Status, w2.Status)
	}
	if !w1.ClosesAt.Equal(t0.Add(2 * time.Hour)) {
		t.Fatalf("window 1 closes at %s, want 2h", w1.ClosesAt.Sub(t0))
	}
	if !w2.ClosesAt.Equal(t0.Add(4 * time.Hour)) {
		t.Fatalf("window 2 closes at %s, want 4h", w2.ClosesAt.Sub(t0))
	}
	if p := h.participant(t, ps[0].ID); p.TotalCheckins != 1 || p.SkippedCheckins != 1 {
		t.Fatalf("participant tallied %d/%d, want one skip", p.TotalCheckins, p.SkippedCheckins)
	}
}

func TestFailedCloseRetriesWithoutDoubleCounting(t *testing.T) {
	mem := memstore.New()
	flaky := &flakyWrites{Store: mem}
	rec := &recorder{}
	e := New(flaky, rec, Config{}, WithLogger(t.Logf))
	h := &harness{e: e, st: mem, rec: rec, ctx: context.Background()}

	c, ps := h.activeChallenge(t, 6*time.Hour, 5, 10, 20)
	ws := h.seedWindows(t, c, fit.CheckinWindow{WindowNumber: 1, OpensAt: t0, ClosesAt: t0.Add(time.Hour), Status: fit.WindowOpen})

	if err := e.CloseCheckinWindows(h.ctx, t0.Add(2*time.Hour)); err == nil {
		t.Fatal("close reported success while the store was down")
	}
	if h.window(t, ws[0].ID).Status != fit.WindowOpen {
		t.Fatal("window closed although the tally was not written")
	}
	for _, p := range ps {
		if got := h.participant(t, p.ID); got.TotalCheckins != 0 {
			t.Fatalf("participant %d tallied by a failed close: %+v", got.UserID, got)
		}
	}

	if err := e.CloseCheckinWindows(h.ctx, t0.Add(3*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := e.CloseCheckinWindows(h.ctx, t0.Add(4*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if h.window(t, ws[0].ID).Status != fit.WindowClosed {
		t.Fatal("retry did not close the window")
	}
	for _, p := range ps {
		got := h.participant(t, p.ID)
		if got.TotalCheckins != 1 || got.SkippedCheckins != 1 {
			t.Fatalf("participant %d counted %d times for one window", got.UserID, got.TotalCheckins)
		}
	}
}

func TestWindowsOfInactiveChallengeStayScheduled(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.seedChallenge(t, func(c *fit.Challenge) { c.Status = fit.ChallengeCancelled })
	ws := h.seedWindows(t, c, fit.CheckinWindow{WindowNumber: 1, OpensAt: t0, ClosesAt: t0.Add(time.Hour), Status: fit.WindowScheduled})
	if err := h.e.OpenCheckinWindows(h.ctx, t0.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if h.window(t, ws[0].ID).Status != fit.WindowScheduled {
		t.Fatal("window of a cancelled challenge opened")
	}
}

func TestRemindersFireOnceForMissingParticipants(t *testing.T) {
	h := newHarness(t, Config{ReminderBeforeClose: 12 * time.Hour})
	c, _ := h.activeChallenge(t, 72*time.Hour, 5, 10, 20)
	ws := h.seedWindows(t, c, fit.CheckinWindow{WindowNumber: 1, OpensAt: t0, ClosesAt: t0.Add(24 * time.Hour), Status: fit.WindowScheduled})
	if err := h.e.OpenCheckinWindows(h.ctx, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := h.e.OnCheckinSubmitted(h.ctx, t0.Add(time.Hour), CheckinInput{WindowID: ws[0].ID, UserID: 10, Weight: 95, Waist: 95}); err != nil {
		t.Fatal(err)
	}

	h.rec.reset()
	if err := h.e.SendCheckinReminders(h.ctx, t0.Add(11*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if len(h.rec.sent) != 0 || h.window(t, ws[0].ID).ReminderSentAt != nil {
		t.Fatal("reminded too early")
	}

	if err := h.e.SendCheckinReminders(h.ctx, t0.Add(13*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if !containsText(h.rec.textsTo(notify.GroupChat(testChat)), "Still missing: @user20") {
		t.Fatalf("group reminder = %q", h.rec.textsTo(notify.GroupChat(testChat)))
	}
	if len(h.rec.messagesTo(notify.User(20))) != 1 || len(h.rec.messagesTo(notify.User(10))) != 0 {
		t.Fatal("direct reminders must go to missing participants only")
	}
	if h.window(t, ws[0].ID).ReminderSentAt == nil {
		t.Fatal("window not marked reminded")
	}

	sent := len(h.rec.sent)
	if err := h.e.SendCheckinReminders(h.ctx, t0.Add(14*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if len(h.rec.sent) != sent {
		t.Fatal("window reminded twice")
	}
}

func TestShortWindowIsMarkedRemindedSilently(t *testing.T) {
	h := newHarness(t, Config{ReminderBeforeClose: 12 * time.Hour})
	c, _ := h.activeChallenge(t, 72*time.Hour, 5, 10)
	ws := h.seedWindows(t, c, fit.CheckinWindow{WindowNumber: 1, OpensAt: t0, ClosesAt: t0.Add(6 * time.Hour), Status: fit.WindowScheduled})
	if err := h.e.OpenCheckinWindows(h.ctx, t0); err != nil {
		t.Fatal(err)
	}
	h.rec.reset()
	if err := h.e.SendCheckinReminders(h.ctx, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if len(h.rec.sent) != 0 {
		t.Fatalf("short window sent %d reminders", len(h.rec.sent))
	}
	if h.window(t, ws[0].ID).ReminderSentAt == nil {
		t.Fatal("short window not marked reminded")
	}
}
