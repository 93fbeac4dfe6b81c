package chat

import (
	"fmt"
	"strings"

	"github.com/stake-plus/fitbet/src/engine"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

const dateLayout = "02 Jan 2006"

func formatChallenge(c *fit.Challenge, roster []fit.Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Challenge in %s\n", titleOf(c))
	fmt.Fprintf(&b, "Status: %s\n", c.Status)
	fmt.Fprintf(&b, "Duration: %d %s\n", c.Duration, c.DurationUnit)
	fmt.Fprintf(&b, "Stake: %s\n", c.Stake.StringFixed(2))
	fmt.Fprintf(&b, "Discipline threshold: %.0f%%, allowed skips: %d\n", c.DisciplineThreshold*100, c.MaxSkips)
	if c.BankHolderID != nil {
		name := ""
		if c.BankHolderUsername != nil {
			name = *c.BankHolderUsername
		}
		fmt.Fprintf(&b, "Bank holder: %s\n", fit.UserLabel(*c.BankHolderID, name, ""))
	}
	if c.StartedAt != nil && c.EndsAt != nil {
		fmt.Fprintf(&b, "Runs %s to %s\n", c.StartedAt.UTC().Format(dateLayout), c.EndsAt.UTC().Format(dateLayout))
	}
	b.WriteString("\nParticipants:\n")
	if len(roster) == 0 {
		b.WriteString("none yet")
	}
	for i := range roster {
		p := &roster[i]
		fmt.Fprintf(&b, "%s: %s (check-ins %d/%d, skipped %d)\n",
			p.Label(), p.Status, p.CompletedCheckins, p.TotalCheckins, p.SkippedCheckins)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatParticipations(ps []engine.Participation) string {
	if len(ps) == 0 {
		return "You have not joined any challenge yet. Tap Join under a challenge in your group."
	}
	var b strings.Builder
	b.WriteString("Your challenges:")
	for i := range ps {
		c, p := &ps[i].Challenge, &ps[i].Participant
		fmt.Fprintf(&b, "\n\n%s\nChallenge: %s, you: %s", titleOf(c), c.Status, p.Status)
		if c.StartedAt != nil && c.EndsAt != nil {
			fmt.Fprintf(&b, "\nRuns %s to %s", c.StartedAt.UTC().Format(dateLayout), c.EndsAt.UTC().Format(dateLayout))
		}
		if p.StartWeight > 0 {
			fmt.Fprintf(&b, "\nStart: %.1f kg, waist %.1f cm", p.StartWeight, p.StartWaist)
		}
		if p.TargetWeight > 0 {
			fmt.Fprintf(&b, "\nTarget: %.1f kg, waist %.1f cm", p.TargetWeight, p.TargetWaist)
		}
		fmt.Fprintf(&b, "\nCheck-ins %d/%d, skipped %d", p.CompletedCheckins, p.TotalCheckins, p.SkippedCheckins)
		if next := nextStep(p.Status); next != "" {
			b.WriteString("\nNext: " + next)
		}
	}
	return b.String()
}

func nextStep(s fit.ParticipantStatus) string {
	switch s {
	case fit.ParticipantOnboarding:
		return "send /onboard with your start metrics."
	case fit.ParticipantPendingPay:
		return "pay the stake to the bank holder and tap I paid."
	case fit.ParticipantPaymentMarked:
		return "wait for the bank holder to confirm your payment."
	case fit.ParticipantActive:
		return "check in whenever a window opens."
	}
	return ""
}

func titleOf(c *fit.Challenge) string {
	if c.ChatTitle != "" {
		return c.ChatTitle
	}
	return fmt.Sprintf("chat %d", c.ChatID)
}
