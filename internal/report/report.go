// Package report renders the monthly progress report as a PDF: an overview,
// per-stage bars, the daily completion trend of the current month, a table of
// every procedure and the practice suggestions.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/wftracker/wftracker/internal/analytics"
	"github.com/wftracker/wftracker/internal/checklist"
)

const (
	margin     = 15.0
	bottomEdge = 30.0
)

type rgb struct{ r, g, b int }

var (
	blue      = rgb{59, 130, 246}
	green     = rgb{34, 197, 94}
	orange    = rgb{251, 146, 60}
	purple    = rgb{168, 85, 247}
	slate     = rgb{30, 41, 59}
	muted     = rgb{100, 116, 139}
	track     = rgb{229, 231, 235}
	panel     = rgb{249, 250, 251}
	tipColors = []rgb{green, blue, purple, {20, 184, 166}, {236, 72, 153}, {132, 204, 22}}
)

// Input is everything a report is rendered from.
type Input struct {
	FullName string
	Tasks    []checklist.Task
	Now      time.Time
	Location *time.Location
}

// FileName returns the download name for a report generated at now,
// e.g. "Workflow-Tracker-Report-July-2025.pdf".
func FileName(now time.Time) string {
	return "Workflow-Tracker-Report-" + now.Format("January-2006") + ".pdf"
}

// Write renders the report for in to w.
func Write(w io.Writer, in Input) error {
	if in.Now.IsZero() {
		return errors.New("report: Now is required")
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now.In(loc)

	a := analytics.Generate(in.Tasks, now, loc)
	r := &renderer{
		pdf:         fpdf.New("P", "mm", "A4", ""),
		now:         now,
		analytics:   a,
		daily:       analytics.CurrentMonthDaily(a, now, loc),
		suggestions: analytics.GenerateSuggestions(a),
	}
	r.pageW, r.pageH = r.pdf.GetPageSize()
	r.contentW = r.pageW - 2*margin

	r.pdf.SetTitle("Workflow Tracker Report "+now.Format("January 2006"), false)
	r.pdf.SetAuthor(in.FullName, false)
	r.pdf.SetCreator("wftracker", false)
	r.pdf.SetCreationDate(now)
	r.pdf.SetModificationDate(now)
	r.pdf.SetCatalogSort(true)
	r.pdf.SetAutoPageBreak(false, bottomEdge)
	r.pdf.SetFooterFunc(r.footer)

	r.pdf.AddPage()
	r.header(in.FullName)
	r.overview()
	r.stages()
	r.trend()

	r.pdf.AddPage()
	r.y = 25
	r.taskSummary()

	r.pdf.AddPage()
	r.y = 25
	r.tips()

	if err := r.pdf.Output(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

type renderer struct {
	pdf         *fpdf.Fpdf
	now         time.Time
	analytics   analytics.Analytics
	daily       []analytics.DailyCompletion
	suggestions []analytics.Suggestion

	pageW, pageH, contentW float64
	y                      float64
}

func (r *renderer) fill(c rgb) { r.pdf.SetFillColor(c.r, c.g, c.b) }
func (r *renderer) text(c rgb) { r.pdf.SetTextColor(c.r, c.g, c.b) }
func (r *renderer) draw(c rgb) { r.pdf.SetDrawColor(c.r, c.g, c.b) }

// centered writes s centered across the page with its baseline at y.
func (r *renderer) centered(y float64, s string) {
	r.pdf.SetXY(0, y-4)
	r.pdf.CellFormat(r.pageW, 5, s, "", 0, "C", false, 0, "")
}

// breakIfNeeded starts a new page when need millimetres do not fit.
func (r *renderer) breakIfNeeded(need float64) {
	if r.y+need > r.pageH-bottomEdge {
		r.pdf.AddPage()
		r.y = 25
	}
}

func (r *renderer) sectionBar(title string, c rgb) {
	r.breakIfNeeded(30)
	r.fill(c)
	r.pdf.RoundedRect(margin, r.y-8, r.contentW, 12, 3, "1234", "F")
	r.text(rgb{255, 255, 255})
	r.pdf.SetFont("Helvetica", "B", 15)
	r.centered(r.y, title)
	r.y += 18
}

func (r *renderer) header(fullName string) {
	r.fill(blue)
	r.pdf.Rect(0, 0, r.pageW, 40, "F")
	r.text(rgb{255, 255, 255})
	r.pdf.SetFont("Helvetica", "B", 26)
	r.centered(18, "WORKFLOW TRACKER REPORT")
	r.pdf.SetFont("Helvetica", "I", 13)
	r.centered(26, "Dental Practice Excellence Report")
	r.pdf.SetFont("Helvetica", "", 11)
	line := r.now.Format("January 2006") + " - Generated " + r.now.Format("2 Jan 2006")
	if fullName != "" {
		line = fullName + " - " + line
	}
	r.centered(33, line)
	r.y = 55
}

func (r *renderer) overview() {
	a := r.analytics
	r.sectionBar("PERFORMANCE OVERVIEW", purple)

	cx := r.pageW / 2
	r.fill(rgb{240, 240, 240})
	r.pdf.Circle(cx, r.y+12, 14, "F")
	switch {
	case a.CompletionRate >= 80:
		r.fill(green)
	case a.CompletionRate >= 50:
		r.fill(blue)
	default:
		r.fill(orange)
	}
	r.pdf.Circle(cx, r.y+12, 12, "F")
	r.text(rgb{255, 255, 255})
	r.pdf.SetFont("Helvetica", "B", 14)
	r.centered(r.y+14, fmt.Sprintf("%d%%", a.CompletionRate))
	r.y += 30

	boxW := (r.contentW - 20) / 3
	boxes := []struct {
		label string
		value int
		bg    rgb
		fg    rgb
	}{
		{"TOTAL TASKS", a.TotalCheckboxes, rgb{240, 249, 255}, blue},
		{"COMPLETED", a.CompletedCheckboxes, rgb{240, 253, 244}, green},
		{"REMAINING", a.TotalCheckboxes - a.CompletedCheckboxes, rgb{255, 247, 237}, orange},
	}
	for i, b := range boxes {
		x := margin + float64(i)*(boxW+10)
		r.fill(b.bg)
		r.pdf.RoundedRect(x, r.y, boxW, 18, 3, "1234", "F")
		r.text(b.fg)
		r.pdf.SetFont("Helvetica", "B", 9)
		r.pdf.SetXY(x, r.y+2)
		r.pdf.CellFormat(boxW, 5, b.label, "", 0, "C", false, 0, "")
		r.pdf.SetFont("Helvetica", "B", 14)
		r.pdf.SetXY(x, r.y+8)
		r.pdf.CellFormat(boxW, 7, fmt.Sprint(b.value), "", 0, "C", false, 0, "")
	}
	r.y += 35
}

func (r *renderer) stages() {
	r.sectionBar("STAGE BREAKDOWN", green)

	barX, barW := margin+35, 95.0
	for _, key := range checklist.StageKeys {
		st := r.analytics.StageProgress[key]
		r.text(slate)
		r.pdf.SetFont("Helvetica", "B", 10)
		r.pdf.Text(margin+5, r.y, key.Label())

		r.fill(track)
		r.pdf.RoundedRect(barX, r.y-4, barW, 5, 2, "1234", "F")
		if st.Percentage > 0 {
			r.fill(blue)
			r.pdf.RoundedRect(barX, r.y-4, barW*float64(st.Percentage)/100, 5, 2, "1234", "F")
		}

		r.text(muted)
		r.pdf.SetFont("Helvetica", "", 9)
		r.pdf.Text(margin+140, r.y, fmt.Sprintf("%d/%d (%d%%)", st.Completed, st.Total, st.Percentage))
		r.y += 10
	}
	if r.analytics.CompletedCheckboxes == 0 {
		r.pdf.SetFont("Helvetica", "I", 9)
		r.centered(r.y+2, "Start completing tasks to see your stage progress")
		r.y += 8
	}
	r.y += 10
}

func (r *renderer) trend() {
	r.sectionBar("DAILY COMPLETION TREND", blue)

	var total, peak, active int
	for _, d := range r.daily {
		total += d.Completed
		if d.Completed > peak {
			peak = d.Completed
		}
		if d.Completed > 0 {
			active++
		}
	}

	const chartH = 60.0
	r.breakIfNeeded(chartH + 15)
	if active == 0 {
		r.fill(panel)
		r.pdf.RoundedRect(margin, r.y, r.contentW, 45, 4, "1234", "F")
		r.text(muted)
		r.pdf.SetFont("Helvetica", "B", 11)
		r.centered(r.y+15, "Daily Completion Chart")
		r.pdf.SetFont("Helvetica", "", 9)
		r.centered(r.y+25, "Complete tasks daily to see your progress trends")
		r.centered(r.y+32, "Chart will populate as you build your completion history")
		r.y += 55
		return
	}

	r.lineChart(margin, r.y, r.contentW, chartH)
	r.y += chartH + 8

	r.text(slate)
	r.pdf.SetFont("Helvetica", "", 9)
	r.pdf.Text(margin+10, r.y, fmt.Sprintf("Average: %.1f tasks/day", float64(total)/float64(active)))
	r.pdf.Text(margin+70, r.y, fmt.Sprintf("Peak: %d tasks/day", peak))
	r.pdf.Text(margin+125, r.y, fmt.Sprintf("Active Days: %d", active))
	r.y += 10
}

// lineChart plots the completions of each day of the month.
func (r *renderer) lineChart(x, y, w, h float64) {
	const pad = 8.0
	cx, cy := x+pad+6, y+pad
	cw, ch := w-2*pad-6, h-2*pad-10

	r.fill(panel)
	r.pdf.RoundedRect(x, y, w, h, 4, "1234", "F")
	r.fill(rgb{255, 255, 255})
	r.pdf.RoundedRect(cx, cy, cw, ch, 2, "1234", "F")

	maxDone := 1
	for _, d := range r.daily {
		if d.Completed > maxDone {
			maxDone = d.Completed
		}
	}
	days := len(r.daily)
	px := func(i int) float64 { return cx + cw*float64(i)/float64(days) }
	py := func(v int) float64 { return cy + ch - ch*float64(v)/float64(maxDone) }

	r.draw(rgb{235, 235, 235})
	r.pdf.SetLineWidth(0.2)
	for i := 1; i <= 3; i++ {
		gy := cy + ch/4*float64(i)
		r.pdf.Line(cx, gy, cx+cw, gy)
	}

	r.draw(blue)
	r.pdf.SetLineWidth(0.8)
	for i := 0; i+1 < days; i++ {
		r.pdf.Line(px(i), py(r.daily[i].Completed), px(i+1), py(r.daily[i+1].Completed))
	}
	r.fill(blue)
	for i, d := range r.daily {
		if d.Completed > 0 {
			r.pdf.Circle(px(i), py(d.Completed), 1.2, "F")
		}
	}

	r.text(muted)
	r.pdf.SetFont("Helvetica", "", 7)
	for _, v := range []int{0, (maxDone + 1) / 2, maxDone} {
		r.pdf.Text(cx-4, py(v)+1, fmt.Sprint(v))
	}
	for i := 0; i < days; i += 5 {
		r.pdf.Text(px(i)-1, cy+ch+5, fmt.Sprint(i+1))
	}
	r.pdf.SetFont("Helvetica", "B", 7)
	r.centered(cy+ch+10, "DAYS OF MONTH")
}

func (r *renderer) taskSummary() {
	r.sectionBar("TASK SUMMARY", purple)

	started := make([]analytics.TaskStat, 0, len(r.analytics.TaskProgress))
	for _, t := range r.analytics.TaskProgress {
		if t.Total > 0 {
			started = append(started, t)
		}
	}
	sort.SliceStable(started, func(i, j int) bool {
		return started[i].Percentage > started[j].Percentage
	})

	if r.analytics.CompletedCheckboxes == 0 {
		r.text(muted)
		r.pdf.SetFont("Helvetica", "B", 12)
		r.centered(r.y+20, "No tasks completed yet")
		r.pdf.SetFont("Helvetica", "", 9)
		r.centered(r.y+32, "Start completing tasks in the checklist to see detailed progress breakdown")
		r.centered(r.y+42, "Your task completion history will appear here as you make progress")
		r.y += 50
		return
	}

	r.text(slate)
	r.pdf.SetFont("Helvetica", "B", 9)
	r.pdf.Text(margin+5, r.y, "TASK TYPE")
	r.pdf.Text(margin+100, r.y, "PROGRESS")
	r.pdf.Text(margin+140, r.y, "COMPLETION")
	r.y += 8

	for _, t := range started {
		r.breakIfNeeded(9)
		r.text(slate)
		r.pdf.SetFont("Helvetica", "", 9)
		r.pdf.Text(margin+5, r.y, truncate(t.Name, 45))

		r.fill(track)
		r.pdf.RoundedRect(margin+100, r.y-3, 35, 3.5, 1.5, "1234", "F")
		if t.Percentage > 0 {
			switch {
			case t.Percentage >= 80:
				r.fill(green)
			case t.Percentage >= 50:
				r.fill(blue)
			default:
				r.fill(orange)
			}
			r.pdf.RoundedRect(margin+100, r.y-3, 35*float64(t.Percentage)/100, 3.5, 1.5, "1234", "F")
		}

		r.text(muted)
		r.pdf.Text(margin+140, r.y, fmt.Sprintf("%d/%d (%d%%)", t.Completed, t.Total, t.Percentage))
		r.y += 8
	}
}

func (r *renderer) tips() {
	r.sectionBar("INSIGHTS & TIPS", green)

	if len(r.suggestions) == 0 {
		r.text(muted)
		r.pdf.SetFont("Helvetica", "B", 12)
		r.centered(r.y+20, "Insights & Tips Coming Soon")
		return
	}

	textW := r.contentW - 20
	for i, s := range r.suggestions {
		r.pdf.SetFont("Helvetica", "", 9)
		desc := r.pdf.SplitLines([]byte(s.Description), textW)
		if len(desc) > 2 {
			desc = desc[:2]
		}
		r.pdf.SetFont("Helvetica", "I", 8)
		tip := r.pdf.SplitLines([]byte("Tip: "+s.Tip), textW)
		if len(tip) > 1 {
			tip = tip[:1]
		}
		boxH := 20 + 5*float64(len(desc)) + 5*float64(len(tip))
		r.breakIfNeeded(boxH + 6)

		c := tipColors[i%len(tipColors)]
		if strings.Contains(s.Category, "Optimization") || strings.Contains(s.Category, "Building") {
			c = orange
		}
		r.fill(rgb{245, 247, 250})
		r.pdf.RoundedRect(margin, r.y-5, r.contentW, boxH, 3, "1234", "F")
		r.fill(c)
		r.pdf.Rect(margin, r.y-5, 2, boxH, "F")

		r.text(c)
		r.pdf.SetFont("Helvetica", "B", 9)
		r.pdf.Text(margin+10, r.y+2, fmt.Sprintf("%d. %s", i+1, strings.ToUpper(s.Category)))
		r.text(slate)
		r.pdf.SetFont("Helvetica", "B", 11)
		r.pdf.Text(margin+10, r.y+9, s.Title)

		ly := r.y + 15
		r.pdf.SetFont("Helvetica", "", 9)
		for _, l := range desc {
			r.pdf.Text(margin+10, ly, string(l))
			ly += 5
		}
		r.text(muted)
		r.pdf.SetFont("Helvetica", "I", 8)
		for _, l := range tip {
			r.pdf.Text(margin+10, ly+1, string(l))
			ly += 5
		}
		r.y += boxH + 6
	}
}

func (r *renderer) footer() {
	y := r.pageH - 22
	r.draw(track)
	r.pdf.SetLineWidth(0.3)
	r.pdf.Line(margin, y, r.pageW-margin, y)
	r.text(muted)
	r.pdf.SetFont("Helvetica", "B", 8)
	r.centered(y+8, "WORKFLOW TRACKER - DENTAL PRACTICE EXCELLENCE")
	r.pdf.SetFont("Helvetica", "", 7)
	r.centered(y+14, "Generated on "+r.now.Format("2 Jan 2006 at 15:04")+fmt.Sprintf(" - Page %d", r.pdf.PageNo()))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
