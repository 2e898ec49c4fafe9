package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wftracker/wftracker/internal/checklist"
)

const maxSuggestions = 3

// Suggestion is a practice recommendation printed in the monthly report.
type Suggestion struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Tip         string `json:"tip"`
}

// GenerateSuggestions picks up to three recommendations from the overall
// completion rate, the weakest stage, the activity pattern and the
// strongest procedures. It always returns at least one.
func GenerateSuggestions(a Analytics) []Suggestion {
	var out []Suggestion

	switch {
	case a.CompletedCheckboxes == 0:
		out = append(out, Suggestion{
			Category:    "Getting Started",
			Title:       "Begin Your Dental Practice Journey",
			Description: "Start by completing tasks in Stage 1 - Consultation & Examination. Each completed task represents building fundamental skills for exceptional patient care.",
			Tip:         "Focus on one stage at a time. Complete all tasks in Stage 1 before moving to Stage 2.",
		})
	case a.CompletionRate < 30:
		out = append(out, Suggestion{
			Category:    "Foundation Building",
			Title:       "Focus on Quality First Consultations",
			Description: "Prioritize thorough and honest OPD consultations. Quality initial consultations build trust and lead to better treatment acceptance.",
			Tip:         "Dedicate 15-20 minutes per initial consultation to truly understand patient concerns.",
		})
	case a.CompletionRate < 60:
		out = append(out, Suggestion{
			Category:    "Patient Education",
			Title:       "Enhance Patient Communication",
			Description: "Focus on patient education regarding dental health rather than chasing quotas. Explain treatment options clearly.",
			Tip:         "Use visual aids and simple language to educate patients about their dental conditions.",
		})
	case a.CompletionRate < 80:
		out = append(out, Suggestion{
			Category:    "Service Excellence",
			Title:       "Optimize Patient Experience",
			Description: "Ensure all follow-up patients receive the promised quality care, with punctual and hassle-free appointments.",
			Tip:         "Implement a patient feedback system to continuously improve service quality.",
		})
	default:
		out = append(out, Suggestion{
			Category:    "Advanced Excellence",
			Title:       "Systematic Treatment Planning",
			Description: "Your high completion rate indicates excellent workflow management. Focus on systematic treatment planning and execution.",
			Tip:         "Document treatment protocols to maintain consistency across all patient interactions.",
		})
	}

	weakest, weakestPct, weakestTotal := checklist.Stage1, 100, 0
	for _, key := range checklist.StageKeys {
		st := a.StageProgress[key]
		if st.Percentage < weakestPct {
			weakest, weakestPct, weakestTotal = key, st.Percentage, st.Total
		}
	}
	if weakestTotal > 0 && weakestPct < 80 {
		out = append(out, Suggestion{
			Category:    "Workflow Optimization",
			Title:       fmt.Sprintf("Strengthen %s Performance", weakest.Label()),
			Description: fmt.Sprintf("Your %s is at %d%% completion. Identify bottlenecks in this stage to ensure optimal patient care and practice efficiency.", weakest.Label(), weakestPct),
			Tip:         "Review and streamline processes in underperforming stages to maintain workflow balance.",
		})
	}

	workingDays := a.Insights.TotalWorkingDays
	streak := a.Insights.StreakCount
	switch {
	case a.CompletedCheckboxes > 0 && a.CompletedCheckboxes < 5:
		out = append(out, Suggestion{
			Category:    "Early Progress",
			Title:       "Great Start - Keep Building Momentum",
			Description: fmt.Sprintf("You've completed %d tasks! Consistency in practice leads to excellence in patient care.", a.CompletedCheckboxes),
			Tip:         "Try to complete at least one task each day to build a strong foundation.",
		})
	case workingDays > 7 && streak >= 7:
		out = append(out, Suggestion{
			Category:    "Consistency Excellence",
			Title:       "Outstanding Daily Commitment",
			Description: fmt.Sprintf("You've maintained a %d-day completion streak! This consistency builds patient trust.", streak),
			Tip:         "Continue this momentum by setting daily goals and celebrating small wins.",
		})
	case workingDays > 14 && streak < 3:
		out = append(out, Suggestion{
			Category:    "Consistency Building",
			Title:       "Develop Regular Practice Habits",
			Description: "Building consistent daily practice habits will accelerate your learning and improve patient outcomes.",
			Tip:         "Set aside dedicated time each day for skill development, even if just 15-30 minutes.",
		})
	}

	ranked := make([]TaskStat, 0, len(a.TaskProgress))
	for _, t := range a.TaskProgress {
		if t.Total > 0 {
			ranked = append(ranked, t)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Percentage > ranked[j].Percentage
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	if len(ranked) > 0 && ranked[0].Percentage >= 80 {
		names := make([]string, len(ranked))
		for i, t := range ranked {
			names[i] = t.Name
		}
		out = append(out, Suggestion{
			Category:    "Specialty Focus",
			Title:       "Advanced Treatment Excellence",
			Description: fmt.Sprintf("You're excelling in %s. This expertise positions you well for complex cases.", strings.Join(names, ", ")),
			Tip:         "Keep developing your strongest areas while maintaining broad competency across all procedures.",
		})
	}

	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
