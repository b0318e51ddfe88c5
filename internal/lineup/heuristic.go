package lineup

import (
	"math"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

const (
	defaultConfidence = 0.7
	minWinProbability = 0.02
	maxWinProbability = 0.98
	touchdownPoints   = 6.0
	pointsPerYard     = 0.02
	logisticScale     = 6.0
	neutralSpread     = 7.5
)

type Source string

const (
	SourceServer    Source = "server"
	SourceHeuristic Source = "heuristic"
	SourceNeutral   Source = "neutral"
)

type SideSummary struct {
	ExpectedPoints float64 `json:"expected_points"`
	ExpectedYards  int     `json:"expected_yards"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

// Result is a lineup evaluation. WinProbability is the home side's chance, in percent.
type Result struct {
	WinProbability float64     `json:"win_probability" validate:"gte=0,lte=100"`
	Home           SideSummary `json:"home"`
	Away           SideSummary `json:"away"`
	Source         Source      `json:"source"`
}

// Contribution is one assigned player's input to the heuristic. A nil Record means the
// forecast could not be fetched.
type Contribution struct {
	PlayerID string
	Record   *types.ForecastRecord
}

type sideTotals struct {
	points     float64
	yards      float64
	confidence float64
}

func totals(players []Contribution) sideTotals {
	if len(players) == 0 {
		return sideTotals{confidence: defaultConfidence}
	}
	var t sideTotals
	for _, c := range players {
		if c.Record == nil {
			t.confidence += defaultConfidence
			continue
		}
		rec := c.Record
		yards := rec.Predicted(types.StatPassingYards) + rec.Predicted(types.StatRushingYards) + rec.Predicted(types.StatReceivingYards)
		t.points += touchdownPoints*rec.Predicted(types.StatTouchdowns) + pointsPerYard*yards
		t.yards += yards
		t.confidence += types.Clamp01(rec.OverallConfidence)
	}
	t.confidence /= float64(len(players))
	return t
}

// Estimate is the local fallback: strength blends average confidence with relative
// points, and the strength gap goes through a logistic curve.
func Estimate(home, away []Contribution) Result {
	h, a := totals(home), totals(away)

	homeStrength := 0.6*h.confidence + 0.4*(h.points/(a.points+1))
	awayStrength := 0.6*a.confidence + 0.4*(a.points/(h.points+1))

	p := sigmoid(logisticScale * (homeStrength - awayStrength))
	p = math.Min(maxWinProbability, math.Max(minWinProbability, p))

	return Result{
		WinProbability: round1(p * 100),
		Home:           summarize(h),
		Away:           summarize(a),
		Source:         SourceHeuristic,
	}
}

// Neutral is the last-resort result: 50% moved by jitter, which must lie in [-1, 1].
func Neutral(jitter float64) Result {
	jitter = math.Max(-1, math.Min(1, jitter))
	neutral := summarize(sideTotals{confidence: defaultConfidence})
	return Result{
		WinProbability: round1(50 + jitter*neutralSpread),
		Home:           neutral,
		Away:           neutral,
		Source:         SourceNeutral,
	}
}

func summarize(t sideTotals) SideSummary {
	return SideSummary{
		ExpectedPoints: round1(t.points),
		ExpectedYards:  int(math.Round(t.yards)),
		AvgConfidence:  round1(t.confidence * 100),
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// clampPercent bounds a reported win probability to the same range the heuristic uses.
func clampPercent(v float64) float64 {
	return math.Min(maxWinProbability*100, math.Max(minWinProbability*100, v))
}
