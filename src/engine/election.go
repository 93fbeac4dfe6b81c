package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/stake-plus/fitbet/src/events"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
)

// FinalizeMode names what triggered a finalization attempt.
type FinalizeMode string

const (
	FinalizeAllVotes FinalizeMode = "all_votes"
	FinalizeTimeout  FinalizeMode = "timeout"
)

// OnStartElection opens the bank holder vote. Only the creator may start it.
func (e *Engine) OnStartElection(ctx context.Context, now time.Time, challengeID uint64, actorID int64) (*fit.BankHolderElection, error) {
	c, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c.CreatorID != actorID {
		return nil, fit.Preconditionf("only the challenge creator can start the election")
	}
	if c.HasBankHolder() {
		return nil, fit.Preconditionf("the bank holder is already elected")
	}
	if !c.Status.PreActive() {
		return nil, fit.Preconditionf("the election can only run before the challenge starts")
	}
	running, err := e.store.ListElections(ctx, store.ElectionFilter{ChallengeID: c.ID, Status: fit.ElectionInProgress})
	if err != nil {
		return nil, fit.Collaborator("list elections", err)
	}
	if len(running) > 0 {
		return nil, fit.Preconditionf("an election is already in progress")
	}
	eligible, err := e.eligibleParticipants(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(eligible) < 2 {
		return nil, fit.Preconditionf("at least two participants must finish onboarding before the election")
	}

	el := &fit.BankHolderElection{
		ChallengeID: c.ID,
		InitiatedBy: actorID,
		Status:      fit.ElectionInProgress,
		CreatedAt:   now,
	}
	if err := e.store.CreateElection(ctx, el); err != nil {
		if errors.Is(err, fit.ErrConflict) {
			return nil, fit.Preconditionf("an election is already in progress")
		}
		return nil, fit.Collaborator("create election", err)
	}

	e.sendText(ctx, notify.GroupChat(c.ChatID), fmt.Sprintf(
		"Bank holder election started. Ballots were sent to %d participants; voting closes %s.",
		len(eligible), formatTime(now.Add(e.cfg.ElectionTimeout))))
	ballot := msgBallot(el.ID, eligible)
	for i := range eligible {
		e.send(ctx, notify.User(eligible[i].UserID), ballot)
	}
	e.emit(ctx, events.Event{Type: events.ElectionStarted, ChallengeID: c.ID, UserID: actorID, At: now})
	return el, nil
}

// OnVote records one ballot and finalizes when everyone eligible has voted.
func (e *Engine) OnVote(ctx context.Context, now time.Time, electionID uint64, voterID, candidateID int64) error {
	el, err := e.store.GetElection(ctx, electionID)
	if err != nil {
		if errors.Is(err, fit.ErrNotFound) {
			return fit.NotFoundf("election %d not found", electionID)
		}
		return fit.Collaborator("load election", err)
	}
	if el.Status != fit.ElectionInProgress {
		return fit.Preconditionf("this election is closed")
	}
	voter, err := e.findParticipant(ctx, el.ChallengeID, voterID)
	if err != nil {
		return err
	}
	if !voter.Status.ElectionEligible() {
		return fit.Preconditionf("finish onboarding before voting")
	}
	candidate, err := e.store.FindParticipant(ctx, el.ChallengeID, candidateID)
	if err != nil {
		if errors.Is(err, fit.ErrNotFound) {
			return fit.NotFoundf("that candidate is not in this challenge")
		}
		return fit.Collaborator("load candidate", err)
	}
	if !candidate.Status.ElectionEligible() {
		return fit.Preconditionf("%s cannot be elected", candidate.Label())
	}

	vote := &fit.BankHolderVote{ElectionID: el.ID, VoterID: voterID, VotedForID: candidateID, VotedAt: now}
	if err := e.store.CreateVote(ctx, vote); err != nil {
		if errors.Is(err, fit.ErrConflict) {
			return fit.Conflictf("you already voted")
		}
		return fit.Collaborator("record vote", err)
	}
	e.sendText(ctx, notify.User(voterID), fmt.Sprintf("Your vote for %s was recorded.", candidate.Label()))

	if _, err := e.FinalizeElection(ctx, now, el.ID, FinalizeAllVotes); err != nil {
		e.logf("engine: finalize election %d after vote: %v", el.ID, err)
	}
	return nil
}

// FinalizeOverdueElections finalizes every election open longer than the timeout.
func (e *Engine) FinalizeOverdueElections(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-e.cfg.ElectionTimeout)
	overdue, err := e.store.ListElections(ctx, store.ElectionFilter{Status: fit.ElectionInProgress, CreatedBefore: &cutoff})
	if err != nil {
		return fmt.Errorf("engine: list overdue elections: %w", err)
	}
	var errs []error
	for _, el := range overdue {
		if _, err := e.FinalizeElection(ctx, now, el.ID, FinalizeTimeout); err != nil {
			errs = append(errs, fmt.Errorf("engine: finalize election %d: %w", el.ID, err))
		}
	}
	return errors.Join(errs...)
}

// FinalizeElection resolves an in-progress election. It reports false
// without side effects when the election is not in progress or the trigger's
// condition does not hold yet.
func (e *Engine) FinalizeElection(ctx context.Context, now time.Time, electionID uint64, mode FinalizeMode) (bool, error) {
	el, err := e.store.GetElection(ctx, electionID)
	if err != nil {
		return false, fit.Collaborator("load election", err)
	}
	if el.Status != fit.ElectionInProgress {
		return false, nil
	}
	switch mode {
	case FinalizeTimeout:
		if now.Sub(el.CreatedAt) < e.cfg.ElectionTimeout {
			return false, nil
		}
	case FinalizeAllVotes:
	default:
		return false, fmt.Errorf("engine: unknown finalize mode %q", mode)
	}

	c, err := e.getChallenge(ctx, el.ChallengeID)
	if err != nil {
		return false, err
	}
	eligible, err := e.eligibleParticipants(ctx, c.ID)
	if err != nil {
		return false, err
	}
	votes, err := e.store.ListVotes(ctx, el.ID)
	if err != nil {
		return false, fit.Collaborator("list votes", err)
	}

	if len(eligible) == 0 {
		if mode != FinalizeTimeout {
			return false, nil
		}
		el.Status = fit.ElectionCancelled
		el.CompletedAt = timePtr(now)
		if err := e.store.SaveElection(ctx, el); err != nil {
			return false, fit.Collaborator("cancel election", err)
		}
		e.sendText(ctx, notify.GroupChat(c.ChatID), "The bank holder election was cancelled: nobody is eligible.")
		return true, nil
	}

	ids := userIDs(eligible)
	if mode == FinalizeAllVotes && !everyoneVoted(ids, votes) {
		return false, nil
	}

	winnerID := SelectWinner(ids, votes, c.CreatorID)
	var winner *fit.Participant
	for i := range eligible {
		if eligible[i].UserID == winnerID {
			winner = &eligible[i]
		}
	}

	c.BankHolderID = int64Ptr(winnerID)
	if winner.Username != "" {
		name := winner.Username
		c.BankHolderUsername = &name
	} else {
		c.BankHolderUsername = nil
	}
	c.Status = fit.ChallengePendingPayments
	if err := e.store.SaveChallenge(ctx, c); err != nil {
		return false, fit.Collaborator("set bank holder", err)
	}
	el.Status = fit.ElectionCompleted
	el.CompletedAt = timePtr(now)
	if err := e.store.SaveElection(ctx, el); err != nil {
		return false, fit.Collaborator("complete election", err)
	}

	count := tally(votes)[winnerID]
	e.sendText(ctx, notify.GroupChat(c.ChatID), fmt.Sprintf("%s is the bank holder (%d of %d votes).", winner.Label(), count, len(votes)))
	e.sendText(ctx, notify.User(winnerID), "You were elected bank holder. You will be asked to confirm each participant's stake.")
	e.emit(ctx, events.Event{
		Type:        events.ElectionFinalized,
		ChallengeID: c.ID,
		UserID:      winnerID,
		At:          now,
		Detail:      map[string]string{"mode": string(mode), "votes": fmt.Sprint(len(votes))},
	})

	e.reconcilePayments(ctx, now, c, eligible, winnerID)

	if _, err := e.maybeActivate(ctx, now, c.ID); err != nil {
		e.logf("engine: activate challenge %d after election: %v", c.ID, err)
	}
	return true, nil
}

// SelectWinner picks the candidate with the strictly highest tally scanning
// eligible in ascending order, so ties go to the lowest identity. With no
// votes at all the creator wins if eligible, else the lowest identity.
func SelectWinner(eligible []int64, votes []fit.BankHolderVote, creatorID int64) int64 {
	if len(eligible) == 0 {
		return 0
	}
	ids := append([]int64(nil), eligible...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(votes) == 0 {
		for _, id := range ids {
			if id == creatorID {
				return creatorID
			}
		}
		return ids[0]
	}

	counts := tally(votes)
	best, bestCount := ids[0], counts[ids[0]]
	for _, id := range ids[1:] {
		if counts[id] > bestCount {
			best, bestCount = id, counts[id]
		}
	}
	return best
}

func tally(votes []fit.BankHolderVote) map[int64]int {
	counts := make(map[int64]int, len(votes))
	for _, v := range votes {
		counts[v.VotedForID]++
	}
	return counts
}

func everyoneVoted(eligible []int64, votes []fit.BankHolderVote) bool {
	voted := make(map[int64]bool, len(votes))
	for _, v := range votes {
		voted[v.VoterID] = true
	}
	for _, id := range eligible {
		if !voted[id] {
			return false
		}
	}
	return true
}

// reconcileAction is what happens to an eligible participant's payment once
// a holder exists.
type reconcileAction int

const (
	reconcileNone reconcileAction = iota
	reconcileRequestPayment
	reconcileSelfConfirm
	reconcileForwardToHolder
)

type reconcileCase struct {
	status   fit.ParticipantStatus
	isWinner bool
	action   reconcileAction
}

var reconcileTable = []reconcileCase{
	{fit.ParticipantPendingPay, true, reconcileRequestPayment},
	{fit.ParticipantPendingPay, false, reconcileRequestPayment},
	{fit.ParticipantPaymentMarked, true, reconcileSelfConfirm},
	{fit.ParticipantPaymentMarked, false, reconcileForwardToHolder},
	{fit.ParticipantActive, true, reconcileNone},
	{fit.ParticipantActive, false, reconcileNone},
}

func reconcileFor(status fit.ParticipantStatus, isWinner bool) reconcileAction {
	for _, rc := range reconcileTable {
		if rc.status == status && rc.isWinner == isWinner {
			return rc.action
		}
	}
	return reconcileNone
}

func (e *Engine) reconcilePayments(ctx context.Context, now time.Time, c *fit.Challenge, eligible []fit.Participant, winnerID int64) {
	for i := range eligible {
		p := &eligible[i]
		switch reconcileFor(p.Status, p.UserID == winnerID) {
		case reconcileRequestPayment:
			e.send(ctx, notify.User(p.UserID), msgPayPrompt(c, p))
		case reconcileSelfConfirm:
			if err := e.confirmPayment(ctx, now, c, p, winnerID); err != nil {
				e.logf("engine: self-confirm bank holder payment %d: %v", p.ID, err)
			}
		case reconcileForwardToHolder:
			e.send(ctx, notify.User(winnerID), msgConfirmRequest(p, c))
		case reconcileNone:
		}
	}
}

func userIDs(ps []fit.Participant) []int64 {
	out := make([]int64, 0, len(ps))
	for i := range ps {
		out = append(out, ps[i].UserID)
	}
	return out
}

func sortByUser(ps []fit.Participant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].UserID < ps[j].UserID })
}
