package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// GoalVerdict classifies a participant's target.
type GoalVerdict string

const (
	GoalRealistic     GoalVerdict = "realistic"
	GoalTooAggressive GoalVerdict = "too_aggressive"
	GoalTooEasy       GoalVerdict = "too_easy"
)

// GoalInput describes a participant's start and target metrics.
type GoalInput struct {
	Track        string
	Height       float64
	StartWeight  float64
	StartWaist   float64
	TargetWeight float64
	TargetWaist  float64
}

// GoalValidation is the advisor's verdict on a goal.
type GoalValidation struct {
	Verdict   GoalVerdict
	Feedback  string
	Model     string
	Tokens    int
	LatencyMs int64
}

// CheckinInput describes one check-in in the context of the goal.
type CheckinInput struct {
	Goal          GoalInput
	CurrentWeight float64
	CurrentWaist  float64
	History       []string
}

// CheckinAdvice is the advisor's feedback on a check-in.
type CheckinAdvice struct {
	ProgressAssessment  string   `json:"progress_assessment"`
	NutritionAdvice     string   `json:"nutrition_advice"`
	TrainingAdvice      string   `json:"training_advice"`
	MotivationalMessage string   `json:"motivational_message"`
	WarningFlags        []string `json:"warning_flags"`

	Model     string `json:"-"`
	Tokens    int    `json:"-"`
	LatencyMs int64  `json:"-"`
}

const goalSystemPrompt = "You are a sports nutrition consultant. Judge whether a body composition goal is realistic. Reply with strict JSON and nothing around it."

const checkinSystemPrompt = "You are a fitness coach reviewing a periodic check-in. Reply with strict JSON and nothing around it."

// Advisor turns a Client into goal and check-in feedback.
type Advisor struct {
	client Client
	now    func() time.Time
	logf   func(format string, args ...any)
}

// NewAdvisor wraps client.
func NewAdvisor(client Client) *Advisor {
	return &Advisor{client: client, now: time.Now, logf: log.Printf}
}

// ValidateGoal classifies the goal. Unparseable replies default to realistic.
func (a *Advisor) ValidateGoal(ctx context.Context, in GoalInput) (GoalValidation, error) {
	prompt := fmt.Sprintf(`Participant:
- track: %s
- height: %.1f cm
- start: %.1f kg, waist %.1f cm
- target: %.1f kg, waist %.1f cm

Classify the target as one of:
- realistic: achievable and safe
- too_aggressive: too fast or risky
- too_easy: barely any progress

Reply JSON:
{"result":"realistic|too_aggressive|too_easy","feedback":"1-3 short sentences of advice"}`,
		trackLabel(in.Track), in.Height, in.StartWeight, in.StartWaist, in.TargetWeight, in.TargetWaist)

	started := a.now()
	out, err := a.client.Complete(ctx, prompt, Options{SystemPrompt: goalSystemPrompt, Temperature: 0.2})
	if err != nil {
		return GoalValidation{}, fmt.Errorf("ai: validate goal: %w", err)
	}
	var parsed struct {
		Result   string `json:"result"`
		Feedback string `json:"feedback"`
	}
	if err := ParseJSON(out.Text, &parsed); err != nil {
		a.logf("ai: validate goal: unparseable reply from %s, assuming realistic: %v", out.Model, err)
	}

	verdict := GoalVerdict(strings.ToLower(strings.TrimSpace(parsed.Result)))
	switch verdict {
	case GoalRealistic, GoalTooAggressive, GoalTooEasy:
	default:
		verdict = GoalRealistic
	}
	return GoalValidation{
		Verdict:   verdict,
		Feedback:  strings.TrimSpace(parsed.Feedback),
		Model:     out.Model,
		Tokens:    out.TokensUsed,
		LatencyMs: a.now().Sub(started).Milliseconds(),
	}, nil
}

// AnalyzeCheckin produces coaching feedback for a check-in.
func (a *Advisor) AnalyzeCheckin(ctx context.Context, in CheckinInput) (CheckinAdvice, error) {
	history := "none"
	if len(in.History) > 0 {
		history = strings.Join(in.History, "\n")
	}
	prompt := fmt.Sprintf(`Participant:
- track: %s
- height: %.1f cm
- start: %.1f kg, waist %.1f cm
- target: %.1f kg, waist %.1f cm
- current: %.1f kg, waist %.1f cm

Previous check-ins:
%s

Reply JSON:
{"progress_assessment":"...","nutrition_advice":"...","training_advice":"...","motivational_message":"...","warning_flags":[]}`,
		trackLabel(in.Goal.Track), in.Goal.Height, in.Goal.StartWeight, in.Goal.StartWaist,
		in.Goal.TargetWeight, in.Goal.TargetWaist, in.CurrentWeight, in.CurrentWaist, history)

	started := a.now()
	out, err := a.client.Complete(ctx, prompt, Options{SystemPrompt: checkinSystemPrompt, Temperature: 0.4})
	if err != nil {
		return CheckinAdvice{}, fmt.Errorf("ai: analyze checkin: %w", err)
	}
	var advice CheckinAdvice
	if err := ParseJSON(out.Text, &advice); err != nil {
		return CheckinAdvice{}, fmt.Errorf("ai: analyze checkin: %w", err)
	}
	if advice.WarningFlags == nil {
		advice.WarningFlags = []string{}
	}
	advice.Model = out.Model
	advice.Tokens = out.TokensUsed
	advice.LatencyMs = a.now().Sub(started).Milliseconds()
	return advice, nil
}

// ParseJSON decodes the first JSON object in text, tolerating surrounding
// prose or code fences.
func ParseJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last <= first {
		return fmt.Errorf("no JSON object in reply")
	}
	return json.Unmarshal([]byte(text[first:last+1]), v)
}

func trackLabel(track string) string {
	if track == "bulk" {
		return "gain (bulk)"
	}
	return "lose (cut)"
}
