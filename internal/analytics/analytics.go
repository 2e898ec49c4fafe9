// Package analytics derives descriptive completion statistics from the
// checkbox timestamps of a task list. Nothing here is persisted and
// nothing feeds back into the unlock rules.
package analytics

import (
	"sort"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
)

const dateLayout = "2006-01-02"

// StageStat is the completion of one stage across all tasks.
type StageStat struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

// TaskStat is the completion of one task across all stages.
type TaskStat struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Total        int        `json:"total"`
	Completed    int        `json:"completed"`
	Percentage   int        `json:"percentage"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
}

// DailyCompletion counts completions on one calendar day.
type DailyCompletion struct {
	Date           string                     `json:"date"`
	Completed      int                        `json:"completed"`
	TaskBreakdown  map[string]int             `json:"taskBreakdown"`
	StageBreakdown map[checklist.StageKey]int `json:"stageBreakdown"`
}

// WeeklyCompletion sums the active days of a Monday-start week.
type WeeklyCompletion struct {
	WeekStart      string            `json:"weekStart"`
	WeekEnd        string            `json:"weekEnd"`
	TotalCompleted int               `json:"totalCompleted"`
	DailyBreakdown []DailyCompletion `json:"dailyBreakdown"`
	AveragePerDay  float64           `json:"averagePerDay"`
}

// MonthlyCompletion sums the active days of a calendar month.
type MonthlyCompletion struct {
	Month              string             `json:"month"`
	TotalCompleted     int                `json:"totalCompleted"`
	DailyBreakdown     []DailyCompletion  `json:"dailyBreakdown"`
	WeeklyBreakdown    []WeeklyCompletion `json:"weeklyBreakdown"`
	AveragePerDay      float64            `json:"averagePerDay"`
	MostProductiveDay  string             `json:"mostProductiveDay"`
	LeastProductiveDay string             `json:"leastProductiveDay"`
}

// Highlights are the derived headline numbers.
type Highlights struct {
	MostActiveHour    *int   `json:"mostActiveHour,omitempty"`
	MostProductiveDay string `json:"mostProductiveDay,omitempty"`
	StreakCount       int    `json:"streakCount"`
	TotalWorkingDays  int    `json:"totalWorkingDays"`
}

// Analytics is the full derived view of a task list.
type Analytics struct {
	TotalTasks          int                              `json:"totalTasks"`
	TotalCheckboxes     int                              `json:"totalCheckboxes"`
	CompletedCheckboxes int                              `json:"completedCheckboxes"`
	CompletionRate      int                              `json:"completionRate"`
	StageProgress       map[checklist.StageKey]StageStat `json:"stageProgress"`
	TaskProgress        []TaskStat                       `json:"taskProgress"`
	DailyData           []DailyCompletion                `json:"dailyData"`
	WeeklyData          []WeeklyCompletion               `json:"weeklyData"`
	MonthlyData         []MonthlyCompletion              `json:"monthlyData"`
	Insights            Highlights                       `json:"insights"`
}

// Generate computes analytics for tasks as of now. Calendar days are taken
// in loc; a nil loc means UTC.
func Generate(tasks []checklist.Task, now time.Time, loc *time.Location) Analytics {
	if loc == nil {
		loc = time.UTC
	}

	a := Analytics{
		TotalTasks:    len(tasks),
		StageProgress: make(map[checklist.StageKey]StageStat, len(checklist.StageKeys)),
		TaskProgress:  make([]TaskStat, 0, len(tasks)),
	}

	for _, key := range checklist.StageKeys {
		p := checklist.CalculateStageProgress(tasks, key)
		a.StageProgress[key] = StageStat{
			Total:      p.Total,
			Completed:  p.Completed,
			Percentage: p.Percentage(),
		}
		a.TotalCheckboxes += p.Total
		a.CompletedCheckboxes += p.Completed
	}
	a.CompletionRate = checklist.Percent(a.CompletedCheckboxes, a.TotalCheckboxes)

	days := make(map[string]*DailyCompletion)
	var hours [24]int
	var anyCompletion bool

	for _, task := range tasks {
		total, done := task.CheckboxCount()
		stat := TaskStat{
			ID:         task.ID,
			Name:       task.Name,
			Total:      total,
			Completed:  done,
			Percentage: checklist.Percent(done, total),
		}
		if task.Metadata != nil && task.Metadata.LastActivityAt != nil {
			last := *task.Metadata.LastActivityAt
			stat.LastActivity = &last
		}
		a.TaskProgress = append(a.TaskProgress, stat)

		for _, key := range checklist.StageKeys {
			for _, cb := range task.Stages.Get(key) {
				if !cb.Completed || cb.CompletedAt == nil {
					continue
				}
				at := cb.CompletedAt.In(loc)
				date := at.Format(dateLayout)
				d, ok := days[date]
				if !ok {
					d = newDaily(date)
					days[date] = d
				}
				d.Completed++
				d.TaskBreakdown[task.ID]++
				d.StageBreakdown[key]++
				hours[at.Hour()]++
				anyCompletion = true
			}
		}
	}

	a.DailyData = make([]DailyCompletion, 0, len(days))
	for _, d := range days {
		a.DailyData = append(a.DailyData, *d)
	}
	sort.Slice(a.DailyData, func(i, j int) bool {
		return a.DailyData[i].Date < a.DailyData[j].Date
	})

	a.WeeklyData = groupWeeks(a.DailyData, loc)
	a.MonthlyData = groupMonths(a.DailyData, loc)

	a.Insights = Highlights{
		MostProductiveDay: mostProductive(a.DailyData),
		StreakCount:       Streak(a.DailyData, now, loc),
		TotalWorkingDays:  len(a.DailyData),
	}
	if anyCompletion {
		best := 0
		for h := 1; h < len(hours); h++ {
			if hours[h] > hours[best] {
				best = h
			}
		}
		a.Insights.MostActiveHour = &best
	}

	return a
}

// Streak counts consecutive calendar days with at least one completion,
// walking back from today. A quiet today does not break the streak; the
// first quiet day before it does.
func Streak(daily []DailyCompletion, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	active := make(map[string]bool, len(daily))
	for _, d := range daily {
		if d.Completed > 0 {
			active[d.Date] = true
		}
	}

	today := civilDay(now, loc)
	streak := 0
	for day := today; ; day = day.AddDate(0, 0, -1) {
		if active[day.Format(dateLayout)] {
			streak++
			continue
		}
		if !day.Equal(today) {
			break
		}
	}
	return streak
}

// CurrentMonthDaily returns one entry per day of the month containing now,
// zero-filled for quiet days.
func CurrentMonthDaily(a Analytics, now time.Time, loc *time.Location) []DailyCompletion {
	if loc == nil {
		loc = time.UTC
	}
	byDate := make(map[string]DailyCompletion, len(a.DailyData))
	for _, d := range a.DailyData {
		byDate[d.Date] = d
	}

	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	out := make([]DailyCompletion, 0, 31)
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		if d, ok := byDate[date]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, *newDaily(date))
	}
	return out
}

func newDaily(date string) *DailyCompletion {
	return &DailyCompletion{
		Date:           date,
		TaskBreakdown:  make(map[string]int),
		StageBreakdown: make(map[checklist.StageKey]int),
	}
}

func civilDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

func parseDate(date string, loc *time.Location) time.Time {
	t, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// weekStart returns the Monday on or before day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func groupWeeks(daily []DailyCompletion, loc *time.Location) []WeeklyCompletion {
	var out []WeeklyCompletion
	index := make(map[string]int)
	for _, d := range daily {
		start := weekStart(parseDate(d.Date, loc))
		key := start.Format(dateLayout)
		i, ok := index[key]
		if !ok {
			out = append(out, WeeklyCompletion{
				WeekStart: key,
				WeekEnd:   start.AddDate(0, 0, 6).Format(dateLayout),
			})
			i = len(out) - 1
			index[key] = i
		}
		out[i].TotalCompleted += d.Completed
		out[i].DailyBreakdown = append(out[i].DailyBreakdown, d)
	}
	for i := range out {
		out[i].AveragePerDay = average(out[i].TotalCompleted, len(out[i].DailyBreakdown))
	}
	return out
}

func groupMonths(daily []DailyCompletion, loc *time.Location) []MonthlyCompletion {
	var out []MonthlyCompletion
	index := make(map[string]int)
	for _, d := range daily {
		key := d.Date[:7]
		i, ok := index[key]
		if !ok {
			out = append(out, MonthlyCompletion{Month: key})
			i = len(out) - 1
			index[key] = i
		}
		out[i].TotalCompleted += d.Completed
		out[i].DailyBreakdown = append(out[i].DailyBreakdown, d)
	}
	for i := range out {
		m := &out[i]
		m.WeeklyBreakdown = groupWeeks(m.DailyBreakdown, loc)
		m.AveragePerDay = average(m.TotalCompleted, len(m.DailyBreakdown))
		m.MostProductiveDay = mostProductive(m.DailyBreakdown)
		m.LeastProductiveDay = leastProductive(m.DailyBreakdown)
	}
	return out
}

// mostProductive returns the date with the most completions, earliest on
// ties. daily must be sorted by date.
func mostProductive(daily []DailyCompletion) string {
	best := -1
	for i, d := range daily {
		if best < 0 || d.Completed > daily[best].Completed {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return daily[best].Date
}

func leastProductive(daily []DailyCompletion) string {
	worst := -1
	for i, d := range daily {
		if worst < 0 || d.Completed < daily[worst].Completed {
			worst = i
		}
	}
	if worst < 0 {
		return ""
	}
	return daily[worst].Date
}

func average(total, days int) float64 {
	if days == 0 {
		return 0
	}
	return float64(total) / float64(days)
}
