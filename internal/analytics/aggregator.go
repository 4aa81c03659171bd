// Package analytics derives call metrics from stored calls and attempts.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/code-100-precent/calltrack/internal/models"
)

// Window inclusive time range over call start
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

func (w Window) contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

type Filter struct {
	TrackedNumberID string `json:"tracked_number_id,omitempty"`
	AgentID         string `json:"agent_id,omitempty"`
}

type Input struct {
	Calls    []models.Call
	Attempts []models.CallAttempt
	Window   Window
	Filter   Filter
	// Location for day and hour buckets, UTC when nil
	Location     *time.Location
	AgentNames   map[string]string
	NumberLabels map[string]string
}

type Summary struct {
	Total        int  `json:"total"`
	Answered     int  `json:"answered"`
	Missed       int  `json:"missed"`
	Abandoned    int  `json:"abandoned"`
	Voicemail    int  `json:"voicemail"`
	AvgAnswerSec *int `json:"avg_answer_sec"`
	AvgHandleSec *int `json:"avg_handle_sec"`
}

type TrendPoint struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Answered  int    `json:"answered"`
	Missed    int    `json:"missed"`
	Voicemail int    `json:"voicemail"`
}

type AgentStat struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Answered     int    `json:"answered"`
	AvgAnswerSec *int   `json:"avg_answer_sec"`
}

type NumberStat struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Answered  int    `json:"answered"`
	Missed    int    `json:"missed"`
	Voicemail int    `json:"voicemail"`
}

type HourStat struct {
	Hour      int `json:"hour"`
	Answered  int `json:"answered"`
	Missed    int `json:"missed"`
	Voicemail int `json:"voicemail"`
}

type Result struct {
	Summary Summary      `json:"summary"`
	Trends  []TrendPoint `json:"trends"`
	Agents  []AgentStat  `json:"agents"`
	Numbers []NumberStat `json:"numbers"`
	Hours   []HourStat   `json:"hours"`
}

// Classification of one call
type Classification struct {
	Answered       bool
	Voicemail      bool
	Missed         bool
	Abandoned      bool
	SpeedToAnswer  *int
	HandleTime     *int
	AnsweringAgent string
}

// Classify labels a call from its own row and its attempts. The answered attempt is
// the earliest-started answered/completed attempt (ties by id), so the result does
// not depend on attempt order.
//
// Attaching a voicemail completes the call, so a completed call holding a voicemail
// and no connected agent counts as voicemail rather than answered.
func Classify(call models.Call, attempts []models.CallAttempt) Classification {
	var answeredAttempt *models.CallAttempt
	for i := range attempts {
		a := &attempts[i]
		if !a.Status.Answered() {
			continue
		}
		if answeredAttempt == nil ||
			a.StartedAt.Before(answeredAttempt.StartedAt) ||
			(a.StartedAt.Equal(answeredAttempt.StartedAt) && a.ID < answeredAttempt.ID) {
			answeredAttempt = a
		}
	}

	hasVoicemail := call.VoicemailURL != ""
	voicemailCompleted := hasVoicemail && call.ConnectedAgentID == nil
	answeredByStatus := call.Status == models.CallConnected ||
		(call.Status == models.CallCompleted && !voicemailCompleted)

	c := Classification{
		Answered:  answeredByStatus || answeredAttempt != nil,
		Voicemail: hasVoicemail,
	}
	c.Missed = !c.Answered && !c.Voicemail
	c.Abandoned = c.Missed && call.Status == models.CallFailed

	if answeredAttempt != nil {
		if s := wholeSeconds(answeredAttempt.StartedAt.Sub(call.StartedAt)); s >= 0 {
			c.SpeedToAnswer = &s
		}
		c.AnsweringAgent = answeredAttempt.AgentID
	} else if call.ConnectedAgentID != nil {
		c.AnsweringAgent = *call.ConnectedAgentID
	}
	if call.EndedAt != nil {
		if s := wholeSeconds(call.EndedAt.Sub(call.StartedAt)); s >= 0 {
			c.HandleTime = &s
		}
	}
	return c
}

func wholeSeconds(d time.Duration) int {
	return int(d / time.Second)
}

type mean struct {
	sum   int64
	count int64
}

func (m *mean) add(v *int) {
	if v == nil || *v < 0 {
		return
	}
	m.sum += int64(*v)
	m.count++
}

// value rounds half away from zero; nil without samples
func (m mean) value() *int {
	if m.count == 0 {
		return nil
	}
	v := int(math.Round(float64(m.sum) / float64(m.count)))
	return &v
}

type agentAcc struct {
	answered int
	speed    mean
}

// Aggregate computes metrics for the calls in the window that match the filter.
// It is pure and its output does not depend on the order of the input rows.
func Aggregate(in Input) Result {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	attemptsByCall := make(map[string][]models.CallAttempt)
	for _, a := range in.Attempts {
		attemptsByCall[a.CallID] = append(attemptsByCall[a.CallID], a)
	}

	var (
		summary Summary
		answer  mean
		handle  mean
		trends  = make(map[string]*TrendPoint)
		agents  = make(map[string]*agentAcc)
		numbers = make(map[string]*NumberStat)
		hours   = make([]HourStat, 24)
	)
	for h := range hours {
		hours[h].Hour = h
	}

	for _, call := range in.Calls {
		if !in.Window.contains(call.StartedAt) {
			continue
		}
		attempts := attemptsByCall[call.ID]
		if !matches(in.Filter, call, attempts) {
			continue
		}
		c := Classify(call, attempts)

		summary.Total++
		summary.Answered += b2i(c.Answered)
		summary.Missed += b2i(c.Missed)
		summary.Abandoned += b2i(c.Abandoned)
		summary.Voicemail += b2i(c.Voicemail)
		answer.add(c.SpeedToAnswer)
		handle.add(c.HandleTime)

		local := call.StartedAt.In(loc)
		day := local.Format("2006-01-02")
		tp := trends[day]
		if tp == nil {
			tp = &TrendPoint{Date: day}
			trends[day] = tp
		}
		tp.Total++
		tp.Answered += b2i(c.Answered)
		tp.Missed += b2i(c.Missed)
		tp.Voicemail += b2i(c.Voicemail)

		key, label, labeled := numberKey(call, in.NumberLabels)
		ns := numbers[key]
		if ns == nil {
			ns = &NumberStat{ID: key, Label: label}
			numbers[key] = ns
		} else if !labeled && label < ns.Label {
			ns.Label = label
		}
		ns.Answered += b2i(c.Answered)
		ns.Missed += b2i(c.Missed)
		ns.Voicemail += b2i(c.Voicemail)

		hs := &hours[local.Hour()]
		hs.Answered += b2i(c.Answered)
		hs.Missed += b2i(c.Missed)
		hs.Voicemail += b2i(c.Voicemail)

		if c.AnsweringAgent != "" {
			acc := agents[c.AnsweringAgent]
			if acc == nil {
				acc = &agentAcc{}
				agents[c.AnsweringAgent] = acc
			}
			acc.answered++
			acc.speed.add(c.SpeedToAnswer)
		}
	}

	summary.AvgAnswerSec = answer.value()
	summary.AvgHandleSec = handle.value()

	return Result{
		Summary: summary,
		Trends:  trendSeries(in.Window, loc, trends),
		Agents:  leaderboard(agents, in.AgentNames),
		Numbers: numberBreakdown(numbers),
		Hours:   hours,
	}
}

func matches(f Filter, call models.Call, attempts []models.CallAttempt) bool {
	if f.TrackedNumberID != "" && (call.TrackedNumberID == nil || *call.TrackedNumberID != f.TrackedNumberID) {
		return false
	}
	if f.AgentID == "" {
		return true
	}
	if call.ConnectedAgentID != nil && *call.ConnectedAgentID == f.AgentID {
		return true
	}
	for _, a := range attempts {
		if a.AgentID == f.AgentID {
			return true
		}
	}
	return false
}

// numberKey groups by tracked number, else dialed number. Without a hydrated label
// the smallest fallback seen for the key wins, so the result is order-independent.
func numberKey(call models.Call, labels map[string]string) (key, label string, labeled bool) {
	key = "unknown"
	label = "Unknown"
	if call.ToNumber != "" {
		key = call.ToNumber
		label = call.ToNumber
	}
	if call.TrackedNumberID != nil && *call.TrackedNumberID != "" {
		key = *call.TrackedNumberID
		if l := labels[key]; l != "" {
			return key, l, true
		}
	}
	return key, label, false
}

// trendSeries one point per day of the window, or per day seen when unbounded
func trendSeries(w Window, loc *time.Location, seen map[string]*TrendPoint) []TrendPoint {
	var days []string
	if !w.From.IsZero() && !w.To.IsZero() && !w.To.Before(w.From) {
		from := w.From.In(loc)
		to := w.To.In(loc)
		day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
		last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)
		for !day.After(last) {
			days = append(days, day.Format("2006-01-02"))
			day = day.AddDate(0, 0, 1)
		}
	} else {
		for d := range seen {
			days = append(days, d)
		}
		sort.Strings(days)
	}

	out := make([]TrendPoint, 0, len(days))
	for _, d := range days {
		if tp := seen[d]; tp != nil {
			out = append(out, *tp)
		} else {
			out = append(out, TrendPoint{Date: d})
		}
	}
	return out
}

func leaderboard(acc map[string]*agentAcc, names map[string]string) []AgentStat {
	out := make([]AgentStat, 0, len(acc))
	for id, a := range acc {
		name := names[id]
		if name == "" {
			name = "Agent"
		}
		out = append(out, AgentStat{
			ID:           id,
			Name:         name,
			Answered:     a.answered,
			AvgAnswerSec: a.speed.value(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Answered != out[j].Answered {
			return out[i].Answered > out[j].Answered
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func numberBreakdown(acc map[string]*NumberStat) []NumberStat {
	out := make([]NumberStat, 0, len(acc))
	for _, n := range acc {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
