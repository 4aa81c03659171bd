package analytics

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func answeredCall(id, agentID string, start time.Time, speed time.Duration) (models.Call, models.CallAttempt) {
	call := models.Call{
		ID:               id,
		ExternalID:       "CA-" + id,
		TrackedNumberID:  strPtr("num1"),
		ToNumber:         "+15550000000",
		StartedAt:        start,
		EndedAt:          timePtr(start.Add(2 * time.Minute)),
		Status:           models.CallCompleted,
		ConnectedAgentID: strPtr(agentID),
	}
	attempt := models.CallAttempt{
		ID:         "att-" + id,
		ExternalID: "CL-" + id,
		CallID:     id,
		AgentID:    agentID,
		Status:     models.AttemptCompleted,
		StartedAt:  start.Add(speed),
	}
	return call, attempt
}

// 6 answered (avg speed 12s), 2 voicemail, 2 failed-missed within a 7 day window
func scenarioInput() Input {
	var in Input
	speeds := []int{10, 12, 14, 8, 16, 12}
	for i, s := range speeds {
		agent := "agent1"
		if i%2 == 1 {
			agent = "agent2"
		}
		c, a := answeredCall(fmt.Sprintf("ans%d", i), agent, base.AddDate(0, 0, i%7).Add(time.Duration(i)*time.Hour), time.Duration(s)*time.Second)
		in.Calls = append(in.Calls, c)
		in.Attempts = append(in.Attempts, a)
	}
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("vm%d", i)
		start := base.AddDate(0, 0, 2).Add(time.Duration(i) * time.Hour)
		in.Calls = append(in.Calls, models.Call{
			ID: id, ExternalID: "CA-" + id, TrackedNumberID: strPtr("num1"), StartedAt: start,
			EndedAt: timePtr(start.Add(40 * time.Second)), Status: models.CallCompleted,
			VoicemailURL: "https://vm/" + id,
		})
		in.Attempts = append(in.Attempts, models.CallAttempt{
			ID: "att-" + id, ExternalID: "CL-" + id, CallID: id, AgentID: "agent1",
			Status: models.AttemptNoAnswer, StartedAt: start.Add(time.Second),
		})
	}
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("miss%d", i)
		start := base.AddDate(0, 0, 4).Add(time.Duration(i) * time.Hour)
		in.Calls = append(in.Calls, models.Call{
			ID: id, ExternalID: "CA-" + id, ToNumber: "+15558880000", StartedAt: start,
			EndedAt: timePtr(start.Add(25 * time.Second)), Status: models.CallFailed,
		})
	}
	in.Window = Window{From: base.Add(-time.Hour), To: base.AddDate(0, 0, 6).Add(10 * time.Hour)}
	in.AgentNames = map[string]string{"agent1": "Amy"}
	in.NumberLabels = map[string]string{"num1": "Main line"}
	return in
}

func TestAggregate_Summary(t *testing.T) {
	res := Aggregate(scenarioInput())

	assert.Equal(t, 10, res.Summary.Total)
	assert.Equal(t, 6, res.Summary.Answered)
	assert.Equal(t, 2, res.Summary.Voicemail)
	assert.Equal(t, 2, res.Summary.Missed)
	assert.Equal(t, 2, res.Summary.Abandoned)
	require.NotNil(t, res.Summary.AvgAnswerSec)
	assert.Equal(t, 12, *res.Summary.AvgAnswerSec)
	require.NotNil(t, res.Summary.AvgHandleSec)
	// (6*120 + 2*40 + 2*25) / 10 = 85
	assert.Equal(t, 85, *res.Summary.AvgHandleSec)
}

func TestAggregate_Breakdowns(t *testing.T) {
	res := Aggregate(scenarioInput())

	require.Len(t, res.Trends, 7)
	assert.Equal(t, "2024-06-03", res.Trends[0].Date)
	assert.Equal(t, "2024-06-09", res.Trends[6].Date)
	total := 0
	for _, tp := range res.Trends {
		total += tp.Total
	}
	assert.Equal(t, 10, total)

	require.Len(t, res.Agents, 2)
	assert.Equal(t, AgentStat{ID: "agent1", Name: "Amy", Answered: 3, AvgAnswerSec: res.Agents[0].AvgAnswerSec}, res.Agents[0])
	assert.Equal(t, "Agent", res.Agents[1].Name)
	assert.Equal(t, 3, res.Agents[1].Answered)

	require.Len(t, res.Numbers, 2)
	assert.Equal(t, NumberStat{ID: "+15558880000", Label: "+15558880000", Missed: 2}, res.Numbers[0])
	assert.Equal(t, NumberStat{ID: "num1", Label: "Main line", Answered: 6, Voicemail: 2}, res.Numbers[1])

	require.Len(t, res.Hours, 24)
	for h, hs := range res.Hours {
		assert.Equal(t, h, hs.Hour)
	}
}

func TestAggregate_DeterministicUnderShuffle(t *testing.T) {
	in := scenarioInput()
	want := Aggregate(in)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := in
		shuffled.Calls = append([]models.Call(nil), in.Calls...)
		shuffled.Attempts = append([]models.CallAttempt(nil), in.Attempts...)
		r.Shuffle(len(shuffled.Calls), func(a, b int) { shuffled.Calls[a], shuffled.Calls[b] = shuffled.Calls[b], shuffled.Calls[a] })
		r.Shuffle(len(shuffled.Attempts), func(a, b int) {
			shuffled.Attempts[a], shuffled.Attempts[b] = shuffled.Attempts[b], shuffled.Attempts[a]
		})
		assert.Equal(t, want, Aggregate(shuffled))
	}
}

func TestAggregate_UnlabeledNumberOrderIndependent(t *testing.T) {
	first := models.Call{ID: "a", ExternalID: "CA-a", TrackedNumberID: strPtr("num-x"), ToNumber: "+15550000002",
		StartedAt: base, Status: models.CallFailed}
	second := models.Call{ID: "b", ExternalID: "CA-b", TrackedNumberID: strPtr("num-x"), ToNumber: "+15550000001",
		StartedAt: base.Add(time.Minute), Status: models.CallFailed}
	third := models.Call{ID: "c", ExternalID: "CA-c", TrackedNumberID: strPtr("num-x"),
		StartedAt: base.Add(2 * time.Minute), Status: models.CallFailed}

	orders := [][]models.Call{
		{first, second, third},
		{second, first, third},
		{third, second, first},
		{third, first, second},
	}
	for _, calls := range orders {
		res := Aggregate(Input{Calls: calls, NumberLabels: map[string]string{"num1": "Main line"}})
		require.Len(t, res.Numbers, 1)
		assert.Equal(t, NumberStat{ID: "num-x", Label: "+15550000001", Missed: 3}, res.Numbers[0])
	}
}

func TestClassify_VoicemailNotMissed(t *testing.T) {
	call := models.Call{ID: "c1", StartedAt: base, Status: models.CallFailed, VoicemailURL: "https://vm/1"}
	attempts := []models.CallAttempt{{ID: "a1", CallID: "c1", AgentID: "agent1", Status: models.AttemptNoAnswer, StartedAt: base}}

	c := Classify(call, attempts)
	assert.True(t, c.Voicemail)
	assert.False(t, c.Missed)
	assert.False(t, c.Abandoned)
	assert.False(t, c.Answered)
}

func TestClassify_Precedence(t *testing.T) {
	cases := []struct {
		name     string
		call     models.Call
		attempts []models.CallAttempt
		want     Classification
	}{
		{
			name: "answered attempt beats voicemail",
			call: models.Call{ID: "c", StartedAt: base, Status: models.CallFailed, VoicemailURL: "v"},
			attempts: []models.CallAttempt{
				{ID: "a", CallID: "c", AgentID: "x", Status: models.AttemptAnswered, StartedAt: base.Add(5 * time.Second)},
			},
			want: Classification{Answered: true, Voicemail: true, SpeedToAnswer: intPtr(5), AnsweringAgent: "x"},
		},
		{
			name: "connected status",
			call: models.Call{ID: "c", StartedAt: base, Status: models.CallConnected, ConnectedAgentID: strPtr("y")},
			want: Classification{Answered: true, AnsweringAgent: "y"},
		},
		{
			name: "completed with voicemail and no agent",
			call: models.Call{ID: "c", StartedAt: base, Status: models.CallCompleted, VoicemailURL: "v"},
			want: Classification{Voicemail: true},
		},
		{
			name: "missed without failure is not abandoned",
			call: models.Call{ID: "c", StartedAt: base, Status: models.CallRinging},
			want: Classification{Missed: true},
		},
		{
			name: "failed is abandoned",
			call: models.Call{ID: "c", StartedAt: base, Status: models.CallFailed, EndedAt: timePtr(base.Add(30 * time.Second))},
			want: Classification{Missed: true, Abandoned: true, HandleTime: intPtr(30)},
		},
		{
			name: "attempt before call start yields no speed",
			call: models.Call{ID: "c", StartedAt: base, Status: models.CallCompleted},
			attempts: []models.CallAttempt{
				{ID: "a", CallID: "c", AgentID: "x", Status: models.AttemptCompleted, StartedAt: base.Add(-time.Second)},
			},
			want: Classification{Answered: true, AnsweringAgent: "x"},
		},
		{
			name: "negative handle time ignored",
			call: models.Call{ID: "c", StartedAt: base, Status: models.CallFailed, EndedAt: timePtr(base.Add(-time.Minute))},
			want: Classification{Missed: true, Abandoned: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.call, tc.attempts))
		})
	}
}

func TestClassify_EarliestAnsweredAttempt(t *testing.T) {
	call := models.Call{ID: "c", StartedAt: base, Status: models.CallConnected, ConnectedAgentID: strPtr("late")}
	attempts := []models.CallAttempt{
		{ID: "b", CallID: "c", AgentID: "late", Status: models.AttemptAnswered, StartedAt: base.Add(9 * time.Second)},
		{ID: "z", CallID: "c", AgentID: "tie-z", Status: models.AttemptCompleted, StartedAt: base.Add(4 * time.Second)},
		{ID: "y", CallID: "c", AgentID: "tie-y", Status: models.AttemptCompleted, StartedAt: base.Add(4 * time.Second)},
	}
	c := Classify(call, attempts)
	assert.Equal(t, "tie-y", c.AnsweringAgent)
	assert.Equal(t, 4, *c.SpeedToAnswer)
}

func TestAggregate_Filters(t *testing.T) {
	in := scenarioInput()

	in.Filter = Filter{AgentID: "agent2"}
	res := Aggregate(in)
	assert.Equal(t, 3, res.Summary.Total)

	in.Filter = Filter{AgentID: "agent1"}
	res = Aggregate(in)
	// 3 answered plus the two voicemails that rang agent1
	assert.Equal(t, 5, res.Summary.Total)

	in.Filter = Filter{TrackedNumberID: "num1"}
	res = Aggregate(in)
	assert.Equal(t, 8, res.Summary.Total)
	assert.Equal(t, 0, res.Summary.Missed)
}

func TestAggregate_WindowAndLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:30 UTC on the 4th is 22:30 on the 3rd in New York
	start := time.Date(2024, 6, 4, 2, 30, 0, 0, time.UTC)
	in := Input{
		Calls: []models.Call{
			{ID: "in", StartedAt: start, Status: models.CallFailed},
			{ID: "out", StartedAt: start.AddDate(0, 0, 10), Status: models.CallFailed},
		},
		Window:   Window{From: time.Date(2024, 6, 3, 0, 0, 0, 0, ny), To: time.Date(2024, 6, 4, 23, 59, 59, 0, ny)},
		Location: ny,
	}
	res := Aggregate(in)

	assert.Equal(t, 1, res.Summary.Total)
	require.Len(t, res.Trends, 2)
	assert.Equal(t, TrendPoint{Date: "2024-06-03", Total: 1, Missed: 1}, res.Trends[0])
	assert.Equal(t, TrendPoint{Date: "2024-06-04"}, res.Trends[1])
	assert.Equal(t, 1, res.Hours[22].Missed)
	assert.Nil(t, res.Summary.AvgAnswerSec)
	assert.Nil(t, res.Summary.AvgHandleSec)
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(Input{})
	assert.Equal(t, 0, res.Summary.Total)
	assert.Empty(t, res.Trends)
	assert.Empty(t, res.Agents)
	assert.Len(t, res.Hours, 24)
}

func TestMean_RoundsHalfAwayFromZero(t *testing.T) {
	var m mean
	m.add(intPtr(1))
	m.add(intPtr(2))
	assert.Equal(t, 2, *m.value())
	m.add(intPtr(-5))
	assert.Equal(t, 2, *m.value())
}

func intPtr(v int) *int { return &v }
