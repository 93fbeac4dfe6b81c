package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

const timeLayout = "02 Jan 2006 15:04 MST"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatMoney(d decimal.Decimal) string { return d.StringFixed(2) }

func formatScore(v float64) string { return fmt.Sprintf("%.1f", v) }

func roster(labels []string) string {
	if len(labels) == 0 {
		return "nobody"
	}
	return strings.Join(labels, ", ")
}

func labels(ps []fit.Participant) []string {
	out := make([]string, 0, len(ps))
	for i := range ps {
		out = append(out, ps[i].Label())
	}
	return out
}

func durationText(n int, unit fit.DurationUnit) string {
	name := string(unit)
	if n == 1 {
		name = strings.TrimSuffix(name, "s")
	}
	return fmt.Sprintf("%d %s", n, name)
}

func msgChallengeCreated(c *fit.Challenge) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf(
			"New challenge: %s\nStake: %s\nDiscipline threshold: %.0f%%\nAllowed skips: %d\nTap below to join.",
			durationText(c.Duration, c.DurationUnit), formatMoney(c.Stake), c.DisciplineThreshold*100, c.MaxSkips),
		Actions: [][]notify.Action{{{Label: "Join", Data: fit.JoinData(c.ID)}}},
	}
}

func msgOnboardingPrompt(c *fit.Challenge) string {
	return fmt.Sprintf(
		"Welcome to the challenge in %s.\nSend your start metrics:\n/onboard <cut|bulk> <weight kg> <waist cm> <height cm> <target weight> <target waist>",
		chatName(c))
}

func chatName(c *fit.Challenge) string {
	if c.ChatTitle != "" {
		return c.ChatTitle
	}
	return fmt.Sprintf("chat %d", c.ChatID)
}

func msgPayPrompt(c *fit.Challenge, p *fit.Participant) notify.Message {
	holder := "The bank holder has not been elected yet; your payment will be confirmed once one is."
	if c.BankHolderID != nil {
		name := fit.UserLabel(*c.BankHolderID, deref(c.BankHolderUsername), "")
		holder = fmt.Sprintf("Transfer the stake to the bank holder %s.", name)
	}
	return notify.Message{
		Text:    fmt.Sprintf("Stake: %s. %s\nTap the button once you have paid.", formatMoney(c.Stake), holder),
		Actions: [][]notify.Action{{{Label: "I paid", Data: fit.PaidData(p.ID)}}},
	}
}

func msgConfirmRequest(p *fit.Participant, c *fit.Challenge) notify.Message {
	return notify.Message{
		Text:    fmt.Sprintf("%s says they paid the stake of %s. Confirm once you received it.", p.Label(), formatMoney(c.Stake)),
		Actions: [][]notify.Action{{{Label: "Confirm " + p.Label(), Data: fit.ConfirmData(p.ID)}}},
	}
}

func msgBallot(electionID uint64, candidates []fit.Participant) notify.Message {
	rows := make([][]notify.Action, 0, len(candidates))
	for i := range candidates {
		rows = append(rows, []notify.Action{{
			Label: candidates[i].Label(),
			Data:  fit.VoteData(electionID, candidates[i].UserID),
		}})
	}
	return notify.Message{
		Text:    "Vote for the bank holder who will collect and confirm stakes:",
		Actions: rows,
	}
}

func msgWindowOpen(w *fit.CheckinWindow) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf("Check-in #%d is open until %s. Submit your weight, waist and photos.",
			w.WindowNumber, formatTime(w.ClosesAt)),
		Actions: [][]notify.Action{{{Label: "Check in", Data: fit.CheckinData(w.ID)}}},
	}
}

func msgReminderDirect(w *fit.CheckinWindow) notify.Message {
	return notify.Message{
		Text:    fmt.Sprintf("Reminder: check-in #%d closes at %s and you have not submitted yet.", w.WindowNumber, formatTime(w.ClosesAt)),
		Actions: [][]notify.Action{{{Label: "Check in", Data: fit.CheckinData(w.ID)}}},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
