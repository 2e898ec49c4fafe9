package analytics

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
)

// MinCompletionsForInsights is the number of completed checkboxes below
// which the insights view shows an onboarding hint instead of patterns.
const MinCompletionsForInsights = 5

const maxInsights = 6

// Insight is one headline observation about a user's completion pattern.
type Insight struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GenerateInsights derives up to six observations from the analytics and
// the daily series of the period being viewed.
func GenerateInsights(a Analytics, daily []DailyCompletion) []Insight {
	var out []Insight

	switch {
	case a.CompletionRate >= 80:
		out = append(out, Insight{
			Icon:        "Award",
			Title:       "Excellence Achievement",
			Description: fmt.Sprintf("Outstanding %d%% completion rate! You're demonstrating exceptional commitment to your dental practice development.", a.CompletionRate),
		})
	case a.CompletionRate >= 50:
		out = append(out, Insight{
			Icon:        "Target",
			Title:       "Good Progress",
			Description: fmt.Sprintf("You've completed %d%% of your tasks. Keep up the momentum to reach the next milestone!", a.CompletionRate),
		})
	default:
		out = append(out, Insight{
			Icon:        "TrendingUp",
			Title:       "Building Foundation",
			Description: fmt.Sprintf("You're at %d%% completion. Focus on consistent daily progress to build strong habits.", a.CompletionRate),
		})
	}

	bestStage, bestPct := checklist.StageKey(""), 0
	for _, key := range checklist.StageKeys {
		if p := a.StageProgress[key].Percentage; p > bestPct {
			bestStage, bestPct = key, p
		}
	}
	if bestPct > 0 {
		out = append(out, Insight{
			Icon:        "Brain",
			Title:       "Stage Strength",
			Description: fmt.Sprintf("Your strongest area is %s with %d%% completion. This shows excellent focus in this domain.", bestStage.Label(), bestPct),
		})
	}

	switch {
	case a.Insights.StreakCount >= 7:
		out = append(out, Insight{
			Icon:        "Calendar",
			Title:       "Consistency Champion",
			Description: fmt.Sprintf("Impressive %d-day activity streak! This consistency is key to mastering dental procedures.", a.Insights.StreakCount),
		})
	case a.Insights.TotalWorkingDays >= 5:
		out = append(out, Insight{
			Icon:        "Clock",
			Title:       "Building Momentum",
			Description: fmt.Sprintf("You've been active for %d days. Try to maintain regular practice for optimal skill development.", a.Insights.TotalWorkingDays),
		})
	}

	var top []string
	for _, t := range a.TaskProgress {
		if t.Percentage >= 80 {
			top = append(top, t.Name)
			if len(top) == 3 {
				break
			}
		}
	}
	if len(top) > 0 {
		out = append(out, Insight{
			Icon:        "Target",
			Title:       "Specialty Excellence",
			Description: fmt.Sprintf("You're excelling in %s. This expertise will benefit your patients significantly.", strings.Join(top, ", ")),
		})
	}

	if in, ok := workLifeBalance(daily); ok {
		out = append(out, in)
	}

	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}

// workLifeBalance compares average completions on active weekdays with
// active weekend days. It needs at least one of each.
func workLifeBalance(daily []DailyCompletion) (Insight, bool) {
	var wdSum, wdDays, weSum, weDays int
	for _, d := range daily {
		if d.Completed == 0 {
			continue
		}
		day, err := time.Parse(dateLayout, d.Date)
		if err != nil {
			continue
		}
		switch day.Weekday() {
		case time.Saturday, time.Sunday:
			weSum += d.Completed
			weDays++
		default:
			wdSum += d.Completed
			wdDays++
		}
	}
	if wdDays == 0 || weDays == 0 {
		return Insight{}, false
	}

	wdAvg := float64(wdSum) / float64(wdDays)
	weAvg := float64(weSum) / float64(weDays)
	diff := int(math.Round((wdAvg - weAvg) / weAvg * 100))

	direction := "fewer"
	if diff > 0 {
		direction = "more"
	}
	advice := "Good work-life balance!"
	if diff > 50 {
		advice = "Consider balanced weekend practice too."
	}
	abs := diff
	if abs < 0 {
		abs = -abs
	}

	return Insight{
		Icon:        "Calendar",
		Title:       "Work-Life Balance",
		Description: fmt.Sprintf("You complete %d%% %s tasks on weekdays. %s", abs, direction, advice),
	}, true
}
