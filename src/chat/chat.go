// Package chat maps chat commands, button taps and direct messages onto the
// engine. It is shared by the Telegram and Discord adapters, which only
// translate their platform updates into a Source plus text and deliver the
// returned reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stake-plus/fitbet/src/engine"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

// Command names understood by Handle.
const (
	CmdStart      = "start"
	CmdHelp       = "help"
	CmdCreate     = "create"
	CmdBankHolder = "bankholder"
	CmdStatus     = "status"
	CmdCancel     = "cancel"
	CmdOnboard    = "onboard"
	CmdCheckin    = "checkin"
	CmdDone       = "done"
)

const photosPerSet = 4

var photoNames = [photosPerSet]string{"front", "left side", "right side", "back"}

// Source describes who sent an update and from where.
type Source struct {
	Actor engine.Actor
	// ChatID is the group the update came from; zero for direct messages.
	ChatID    int64
	ChatTitle string
}

// Private reports whether the update is a direct message.
func (s Source) Private() bool { return s.ChatID == 0 }

type draftKind int

const (
	draftOnboarding draftKind = iota + 1
	draftCheckin
)

// draft holds validated metrics while photos are collected.
type draft struct {
	kind          draftKind
	participantID uint64
	onboarding    engine.OnboardingInput
	checkin       engine.CheckinInput
	photos        []string
}

// Handler is safe for concurrent use.
type Handler struct {
	engine *engine.Engine
	logf   func(format string, args ...any)

	mu     sync.Mutex
	drafts map[int64]*draft
}

// NewHandler wires the handler to the engine.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{
		engine: e,
		logf:   log.Printf,
		drafts: make(map[int64]*draft),
	}
}

// Command executes a slash command and returns the reply for the source.
func (h *Handler) Command(ctx context.Context, now time.Time, src Source, name, args string) string {
	switch strings.ToLower(strings.TrimPrefix(name, "/")) {
	case CmdStart, CmdHelp:
		return h.help(src)
	case CmdCreate:
		return h.create(ctx, now, src, args)
	case CmdBankHolder:
		return h.bankHolder(ctx, now, src)
	case CmdStatus:
		return h.status(ctx, src)
	case CmdCancel:
		return h.cancel(ctx, now, src)
	case CmdOnboard:
		return h.onboard(ctx, src, args)
	case CmdCheckin:
		return h.checkin(ctx, src, args)
	case CmdDone:
		return h.done(ctx, now, src)
	}
	return "Unknown command. Send /help for the list."
}

// Callback executes a button tap and returns a short acknowledgement.
func (h *Handler) Callback(ctx context.Context, now time.Time, src Source, data string) string {
	cb, err := fit.ParseCallback(data)
	if err != nil {
		return describe(err)
	}
	actor := src.Actor
	switch cb.Kind {
	case fit.CallbackJoin:
		if _, err := h.engine.OnParticipantJoin(ctx, now, cb.ID, actor); err != nil {
			return describe(err)
		}
		return "Joined. Check your direct messages to finish onboarding."
	case fit.CallbackPaid:
		if err := h.engine.OnMarkPaid(ctx, now, cb.ID, actor.UserID); err != nil {
			return describe(err)
		}
		return "Marked as paid."
	case fit.CallbackConfirm:
		if err := h.engine.OnConfirmPayment(ctx, now, cb.ID, actor.UserID); err != nil {
			return describe(err)
		}
		return "Payment confirmed."
	case fit.CallbackVote:
		if err := h.engine.OnVote(ctx, now, cb.ID, actor.UserID, cb.Candidate); err != nil {
			return describe(err)
		}
		return "Vote recorded."
	case fit.CallbackCheckin:
		if _, err := h.engine.OnCheckinRequested(ctx, now, cb.ID, actor.UserID); err != nil {
			return describe(err)
		}
		return "Check your direct messages to submit the check-in."
	}
	return "This button is no longer supported."
}

// Photo attaches an uploaded photo reference to the sender's draft. It
// returns false when no draft is waiting for photos.
func (h *Handler) Photo(ctx context.Context, now time.Time, src Source, ref string) (string, bool) {
	if !src.Private() || strings.TrimSpace(ref) == "" {
		return "", false
	}
	h.mu.Lock()
	d := h.drafts[src.Actor.UserID]
	if d == nil {
		h.mu.Unlock()
		return "", false
	}
	d.photos = append(d.photos, ref)
	count := len(d.photos)
	h.mu.Unlock()

	if count < photosPerSet {
		return fmt.Sprintf("Photo %d/%d saved. Next: %s.", count, photosPerSet, photoNames[count]), true
	}
	return h.done(ctx, now, src), true
}

func (h *Handler) help(src Source) string {
	if src.Private() {
		return strings.Join([]string{
			"Direct message commands:",
			"/onboard <cut|bulk> <weight kg> <waist cm> <height cm> <target weight> <target waist>",
			"/checkin <weight kg> <waist cm>",
			"then send up to four photos (front, left, right, back) or /done",
			"/status shows your challenges, /cancel discards an unfinished submission.",
		}, "\n")
	}
	return strings.Join([]string{
		"Group commands:",
		"/create <duration> <stake> [threshold %] [max skips]",
		"/bankholder starts the bank holder election",
		"/status shows the running challenge",
		"/cancel cancels the challenge before it starts (creator only)",
	}, "\n")
}

func (h *Handler) create(ctx context.Context, now time.Time, src Source, args string) string {
	if src.Private() {
		return "Challenges can only be created in a group chat."
	}
	in, err := parseCreateArgs(args)
	if err != nil {
		return describe(err)
	}
	in.ChatID = src.ChatID
	in.ChatTitle = src.ChatTitle
	in.Creator = src.Actor
	if _, err := h.engine.CreateChallenge(ctx, now, in); err != nil {
		return describe(err)
	}
	return ""
}

func parseCreateArgs(args string) (engine.CreateChallengeInput, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 || len(fields) > 4 {
		return engine.CreateChallengeInput{}, fit.Validationf("usage: /create <duration> <stake> [threshold %%] [max skips]")
	}
	duration, err := strconv.Atoi(fields[0])
	if err != nil {
		return engine.CreateChallengeInput{}, fit.Validationf("duration must be a whole number")
	}
	stake, err := decimal.NewFromString(normalizeNumber(fields[1]))
	if err != nil {
		return engine.CreateChallengeInput{}, fit.Validationf("stake must be a number like 1000 or 12.50")
	}
	in := engine.CreateChallengeInput{
		Duration:            duration,
		Stake:               stake,
		DisciplineThreshold: 0.8,
		MaxSkips:            1,
	}
	if len(fields) > 2 {
		pct, err := parseNumber(strings.TrimSuffix(fields[2], "%"))
		if err != nil {
			return engine.CreateChallengeInput{}, fit.Validationf("threshold must be a percentage like 80")
		}
		in.DisciplineThreshold = pct / 100
	}
	if len(fields) > 3 {
		skips, err := strconv.Atoi(fields[3])
		if err != nil {
			return engine.CreateChallengeInput{}, fit.Validationf("max skips must be a whole number")
		}
		in.MaxSkips = skips
	}
	return in, nil
}

func (h *Handler) bankHolder(ctx context.Context, now time.Time, src Source) string {
	if src.Private() {
		return "Run /bankholder in the challenge's group chat."
	}
	c, err := h.engine.ChallengeForChat(ctx, src.ChatID)
	if err != nil {
		return describe(err)
	}
	if _, err := h.engine.OnStartElection(ctx, now, c.ID, src.Actor.UserID); err != nil {
		return describe(err)
	}
	return ""
}

func (h *Handler) cancel(ctx context.Context, now time.Time, src Source) string {
	if src.Private() {
		h.mu.Lock()
		_, ok := h.drafts[src.Actor.UserID]
		delete(h.drafts, src.Actor.UserID)
		h.mu.Unlock()
		if !ok {
			return "Nothing to cancel."
		}
		return "Discarded your unfinished submission."
	}
	c, err := h.engine.ChallengeForChat(ctx, src.ChatID)
	if err != nil {
		return describe(err)
	}
	if err := h.engine.OnCancelChallenge(ctx, now, c.ID, src.Actor.UserID); err != nil {
		return describe(err)
	}
	return ""
}

func (h *Handler) onboard(ctx context.Context, src Source, args string) string {
	if !src.Private() {
		return "Send /onboard to me in a direct message."
	}
	p, err := h.engine.OnboardingFor(ctx, src.Actor.UserID)
	if err != nil {
		return describe(err)
	}
	in, err := parseOnboardingArgs(args)
	if err != nil {
		return describe(err)
	}
	if err := in.Validate(); err != nil {
		return describe(err)
	}
	h.stash(src.Actor.UserID, &draft{kind: draftOnboarding, participantID: p.ID, onboarding: in})
	return photoPrompt()
}

func parseOnboardingArgs(args string) (engine.OnboardingInput, error) {
	fields := strings.Fields(args)
	if len(fields) != 6 {
		return engine.OnboardingInput{}, fit.Validationf("usage: /onboard <cut|bulk> <weight kg> <waist cm> <height cm> <target weight> <target waist>")
	}
	track, err := fit.ParseTrack(fields[0])
	if err != nil {
		return engine.OnboardingInput{}, err
	}
	nums, err := parseNumbers(fields[1:])
	if err != nil {
		return engine.OnboardingInput{}, err
	}
	return engine.OnboardingInput{
		Track:        track,
		StartWeight:  nums[0],
		StartWaist:   nums[1],
		Height:       nums[2],
		TargetWeight: nums[3],
		TargetWaist:  nums[4],
	}, nil
}

func (h *Handler) checkin(ctx context.Context, src Source, args string) string {
	if !src.Private() {
		return "Send /checkin to me in a direct message."
	}
	p, err := h.engine.PendingCheckinFor(ctx, src.Actor.UserID)
	if err != nil {
		return describe(err)
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "Usage: /checkin <weight kg> <waist cm>"
	}
	nums, err := parseNumbers(fields)
	if err != nil {
		return describe(err)
	}
	in := engine.CheckinInput{
		WindowID: *p.PendingCheckinWindowID,
		UserID:   src.Actor.UserID,
		Weight:   nums[0],
		Waist:    nums[1],
	}
	if err := engine.ValidateMeasurements(in.Weight, in.Waist); err != nil {
		return describe(err)
	}
	h.stash(src.Actor.UserID, &draft{kind: draftCheckin, participantID: p.ID, checkin: in})
	return photoPrompt()
}

func photoPrompt() string {
	return fmt.Sprintf("Metrics look good. Send up to %d photos (%s first) or /done to submit without them.", photosPerSet, photoNames[0])
}

func (h *Handler) stash(userID int64, d *draft) {
	h.mu.Lock()
	h.drafts[userID] = d
	h.mu.Unlock()
}

// done submits the sender's draft with whatever photos arrived.
func (h *Handler) done(ctx context.Context, now time.Time, src Source) string {
	h.mu.Lock()
	d := h.drafts[src.Actor.UserID]
	delete(h.drafts, src.Actor.UserID)
	h.mu.Unlock()
	if d == nil {
		return "Nothing to submit. Start with /onboard or /checkin."
	}

	var photos [photosPerSet]string
	copy(photos[:], d.photos)

	switch d.kind {
	case draftOnboarding:
		in := d.onboarding
		in.Photos = photos
		if _, err := h.engine.OnOnboardingComplete(ctx, now, d.participantID, in); err != nil {
			return describe(err)
		}
	case draftCheckin:
		in := d.checkin
		in.Photos = photos
		if _, err := h.engine.OnCheckinSubmitted(ctx, now, in); err != nil {
			return describe(err)
		}
	}
	return ""
}

func (h *Handler) status(ctx context.Context, src Source) string {
	if src.Private() {
		ps, err := h.engine.ParticipationsOf(ctx, src.Actor.UserID)
		if err != nil {
			return describe(err)
		}
		return formatParticipations(ps)
	}
	c, err := h.engine.ChallengeForChat(ctx, src.ChatID)
	if err != nil {
		return describe(err)
	}
	roster, err := h.engine.Roster(ctx, c.ID)
	if err != nil {
		return describe(err)
	}
	return formatChallenge(c, roster)
}

func parseNumbers(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := parseNumber(f)
		if err != nil {
			return nil, fit.Validationf("%q is not a number", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseNumber(raw string) (float64, error) {
	return strconv.ParseFloat(normalizeNumber(raw), 64)
}

func normalizeNumber(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
}

// describe turns engine errors into replies. Collaborator failures are logged
// and hidden behind a generic message.
func describe(err error) string {
	var fe *fit.Error
	if errors.As(err, &fe) && fe.Kind != fit.KindCollaborator && fe.Kind != fit.KindUnknown {
		return fe.Message
	}
	log.Printf("chat: %v", err)
	return "Something went wrong, please try again later."
}
