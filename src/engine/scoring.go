package engine

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

// Score is one confirmed participant's settlement result.
type Score struct {
	ParticipantID   uint64          `json:"participant_id"`
	UserID          int64           `json:"user_id"`
	Label           string          `json:"label"`
	Status          string          `json:"status"`
	Track           fit.Track       `json:"track"`
	CurrentWeight   float64         `json:"current_weight"`
	CurrentWaist    float64         `json:"current_waist"`
	Discipline      float64         `json:"discipline"`
	GoalAchievement float64         `json:"goal_achievement"`
	Total           float64         `json:"total"`
	Winner          bool            `json:"winner"`
	Payout          decimal.Decimal `json:"payout"`
}

// DisciplineScore is completed over total as a percentage, 100 with no windows.
func DisciplineScore(completed, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

// GoalAchievement measures progress toward the target. Bulk weighs weight
// progress 0.7 with a fixed 0.3*100; cut weighs weight 0.7 and waist 0.3.
// Progress terms floor at zero but are not capped, so overshoot exceeds 100.
func GoalAchievement(track fit.Track, startWeight, startWaist, targetWeight, targetWaist, currentWeight, currentWaist float64) float64 {
	switch track {
	case fit.TrackBulk:
		progress := 0.0
		if targetWeight > startWeight {
			progress = clamp0((currentWeight - startWeight) / (targetWeight - startWeight) * 100)
		}
		return 0.7*progress + 0.3*100
	case fit.TrackCut:
		weight := 0.0
		if d := startWeight - targetWeight; d > 0 {
			weight = clamp0((startWeight - currentWeight) / d * 100)
		}
		waist := 0.0
		if d := startWaist - targetWaist; d > 0 {
			waist = clamp0((startWaist - currentWaist) / d * 100)
		}
		return 0.7*weight + 0.3*waist
	}
	return 0
}

func clamp0(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// TotalScore blends goal achievement and discipline.
func TotalScore(goal, discipline float64) float64 {
	return 0.7*goal + 0.3*discipline
}

// ScoreParticipant evaluates p against the challenge rules. latest may be nil,
// in which case the start metrics stand in for the current ones.
func ScoreParticipant(c *fit.Challenge, p *fit.Participant, latest *fit.Checkin) Score {
	weight, waist := p.StartWeight, p.StartWaist
	if latest != nil {
		weight, waist = latest.Weight, latest.Waist
	}
	discipline := DisciplineScore(p.CompletedCheckins, p.TotalCheckins)
	goal := GoalAchievement(p.Track, p.StartWeight, p.StartWaist, p.TargetWeight, p.TargetWaist, weight, waist)

	eligible := p.Status == fit.ParticipantActive || p.Status == fit.ParticipantCompleted
	return Score{
		ParticipantID:   p.ID,
		UserID:          p.UserID,
		Label:           p.Label(),
		Status:          string(p.Status),
		Track:           p.Track,
		CurrentWeight:   weight,
		CurrentWaist:    waist,
		Discipline:      discipline,
		GoalAchievement: goal,
		Total:           TotalScore(goal, discipline),
		Winner:          eligible && discipline >= c.DisciplineThreshold*100 && goal >= 100,
	}
}

var cent = decimal.New(1, -2)

// AssignPayouts fills Payout for every score. Losers forfeit their stake to
// the winners; with no winners or no losers everyone gets the stake back.
// Shares are cut to the cent and leftover cents go to winners in ascending
// user order so payouts always sum to the stakes collected.
func AssignPayouts(stake decimal.Decimal, scores []Score) {
	var winners []int
	for i := range scores {
		if scores[i].Winner {
			winners = append(winners, i)
		}
	}
	losers := len(scores) - len(winners)
	if len(winners) == 0 || losers == 0 {
		for i := range scores {
			scores[i].Payout = stake
		}
		return
	}

	pool := stake.Mul(decimal.NewFromInt(int64(losers)))
	share := pool.Div(decimal.NewFromInt(int64(len(winners)))).Truncate(2)
	remainder := pool.Sub(share.Mul(decimal.NewFromInt(int64(len(winners)))))

	sort.Slice(winners, func(a, b int) bool { return scores[winners[a]].UserID < scores[winners[b]].UserID })
	for i := range scores {
		scores[i].Payout = decimal.Zero
	}
	for _, idx := range winners {
		payout := stake.Add(share)
		if remainder.GreaterThanOrEqual(cent) {
			payout = payout.Add(cent)
			remainder = remainder.Sub(cent)
		}
		scores[idx].Payout = payout
	}
}

// RankScores orders by total descending, ties by user identity.
func RankScores(scores []Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		return scores[i].UserID < scores[j].UserID
	})
}
