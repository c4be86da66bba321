package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contestStart = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func judged(id, participant, problem string, verdict result.Verdict, score int64, after time.Duration) judgemodel.FinalStatusEvent {
	return judgemodel.FinalStatusEvent{
		SubmissionID:  id,
		ContestID:     "c1",
		ProblemID:     problem,
		ParticipantID: participant,
		State:         judgemodel.StateJudged,
		Verdict:       verdict,
		Score:         score,
		MaxScore:      100,
		JudgedAt:      contestStart.Add(after),
	}
}

func applyAll(t *testing.T, b *Board, events ...judgemodel.FinalStatusEvent) {
	t.Helper()
	for _, ev := range events {
		_, _, err := b.Apply(ev, nil)
		require.NoError(t, err)
	}
}

func tieFixture() []judgemodel.FinalStatusEvent {
	return []judgemodel.FinalStatusEvent{
		judged("a1", "A", "p1", result.VerdictAC, 100, 40*time.Minute),
		judged("b1", "B", "p1", result.VerdictAC, 100, 25*time.Minute),
		judged("c1", "C", "p1", result.VerdictAC, 100, 25*time.Minute+30*time.Second),
	}
}

func TestTieBreakDefaultPolicy(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	applyAll(t, b, tieFixture()...)

	rows := b.Standings()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{rows[0].ParticipantID, rows[1].ParticipantID, rows[2].ParticipantID})
	assert.Equal(t, []int{1, 1, 3}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank})
	assert.Equal(t, int64(40), rows[2].Penalty)
	assert.Equal(t, int64(25), rows[1].Penalty)
}

func TestTieBreakTimePolicy(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenaltyTime)
	applyAll(t, b, tieFixture()...)

	rows := b.Standings()
	require.Len(t, rows, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank})
	assert.Equal(t, "C", rows[1].ParticipantID)
}

func TestPenaltyCountsWrongAttemptsBeforeFirstAccept(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	applyAll(t, b,
		judged("s1", "A", "p1", result.VerdictWA, 30, 3*time.Minute),
		judged("s2", "A", "p1", result.VerdictTLE, 10, 5*time.Minute),
		judged("s3", "A", "p1", result.VerdictAC, 100, 10*time.Minute),
		judged("s4", "A", "p1", result.VerdictWA, 0, 20*time.Minute),
		judged("s5", "A", "p1", result.VerdictAC, 100, 30*time.Minute),
	)

	rows := b.Standings()
	require.Len(t, rows, 1)
	a := rows[0]
	assert.Equal(t, int64(10+2*20), a.Penalty)
	assert.Equal(t, 1, a.SolvedCount)
	assert.Equal(t, int64(100), a.TotalScore)
	require.NotNil(t, a.LastAcceptedAt)
	assert.True(t, a.LastAcceptedAt.Equal(contestStart.Add(10*time.Minute)))

	pr := a.PerProblem["p1"]
	assert.Equal(t, 5, pr.Attempts)
	assert.Equal(t, 2, pr.WrongAttempts)
	require.NotNil(t, pr.SolvedAt)
	assert.True(t, pr.SolvedAt.Equal(contestStart.Add(10*time.Minute)))
}

func TestBestScoreIsMonotone(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	applyAll(t, b,
		judged("s1", "A", "p1", result.VerdictWA, 60, time.Minute),
		judged("s2", "A", "p1", result.VerdictWA, 20, 2*time.Minute),
		judged("s3", "A", "p2", result.VerdictRE, 30, 3*time.Minute),
	)
	rows := b.Standings()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(60), rows[0].PerProblem["p1"].BestScore)
	assert.Equal(t, int64(90), rows[0].TotalScore)
	assert.Equal(t, 0, rows[0].SolvedCount)
	assert.Nil(t, rows[0].LastAcceptedAt)
}

func TestApplyIsIdempotent(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	ev := judged("s1", "A", "p1", result.VerdictAC, 100, 15*time.Minute)

	applied, _, err := b.Apply(ev, nil)
	require.NoError(t, err)
	require.True(t, applied)
	before := b.Standings()

	applied, _, err = b.Apply(ev, nil)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, before, b.Standings())
	assert.Equal(t, uint64(1), b.Version())
}

func TestApplyRejectsInvalidEvents(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)

	failed := judged("s1", "A", "p1", result.VerdictSE, 0, time.Minute)
	failed.State = judgemodel.StateFailed
	_, _, err := b.Apply(failed, nil)
	assert.ErrorIs(t, err, ErrNotJudged)

	other := judged("s2", "A", "p1", result.VerdictAC, 100, time.Minute)
	other.ContestID = "c2"
	_, _, err = b.Apply(other, nil)
	assert.ErrorIs(t, err, ErrWrongContest)

	_, _, err = b.Apply(judged("s3", "", "p1", result.VerdictAC, 100, time.Minute), nil)
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Empty(t, b.Standings())
}

func TestConcurrentApply(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(p, i int) {
				defer wg.Done()
				ev := judged(fmt.Sprintf("s-%d-%d", p, i), fmt.Sprintf("P%d", p), fmt.Sprintf("q%d", i%5), result.VerdictWA, int64(i), time.Duration(i)*time.Minute)
				_, _, _ = b.Apply(ev, nil)
				_ = b.Standings()
			}(p, i)
		}
	}
	wg.Wait()

	rows := b.Standings()
	require.Len(t, rows, 8)
	for _, row := range rows {
		// best per problem q_k is the largest i with i%5 == k: 20..24
		assert.Equal(t, int64(20+21+22+23+24), row.TotalScore)
		assert.Equal(t, 1, row.Rank)
	}
	assert.Equal(t, uint64(200), b.Version())
}

func TestRestore(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	_, entry, err := b.Apply(judged("s1", "A", "p1", result.VerdictAC, 100, 15*time.Minute), nil)
	require.NoError(t, err)

	restored := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	restored.Restore(entry)
	applied, _, err := restored.Apply(judged("s1", "A", "p1", result.VerdictAC, 100, 15*time.Minute), nil)
	require.NoError(t, err)
	assert.False(t, applied, "restored board must remember applied submissions")
	assert.Equal(t, b.Standings(), restored.Standings())
}

func TestStandingIndependentOfDeliveryOrder(t *testing.T) {
	events := []judgemodel.FinalStatusEvent{
		judged("s1", "A", "p1", result.VerdictWA, 40, 10*time.Minute),
		judged("s2", "A", "p1", result.VerdictAC, 100, 30*time.Minute),
		judged("s3", "A", "p1", result.VerdictAC, 100, 50*time.Minute),
		judged("s4", "A", "p2", result.VerdictTLE, 20, 5*time.Minute),
		judged("s5", "A", "p2", result.VerdictAC, 100, 20*time.Minute),
	}
	inOrder := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	applyAll(t, inOrder, events...)

	reversed := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	for i := len(events) - 1; i >= 0; i-- {
		applyAll(t, reversed, events[i])
	}

	want := inOrder.Standings()
	require.Len(t, want, 1)
	assert.Equal(t, int64(30+20+20+20), want[0].Penalty)
	assert.Equal(t, 1, want[0].PerProblem["p1"].WrongAttempts)
	require.NotNil(t, want[0].LastAcceptedAt)
	assert.True(t, want[0].LastAcceptedAt.Equal(contestStart.Add(30*time.Minute)))
	assert.Equal(t, want, reversed.Standings())
}

func TestSubmitTimeOrdersAttempts(t *testing.T) {
	// s2 was submitted first but judged last; it is still the first attempt.
	wa := judged("s1", "A", "p1", result.VerdictWA, 0, 8*time.Minute)
	wa.SubmittedAt = contestStart.Add(6 * time.Minute)
	ac := judged("s2", "A", "p1", result.VerdictAC, 100, 9*time.Minute)
	ac.SubmittedAt = contestStart.Add(5 * time.Minute)

	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	applyAll(t, b, wa, ac)

	rows := b.Standings()
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].PerProblem["p1"].WrongAttempts)
	assert.Equal(t, int64(9), rows[0].Penalty)
}

func TestApplyPersistsUnderParticipantLock(t *testing.T) {
	b := NewBoard("c1", contestStart, DefaultPenaltyPerWrongAttempt, TieOnScorePenalty)
	var (
		mu        sync.Mutex
		persisted []BoardEntry
	)
	persist := func(entry BoardEntry) {
		mu.Lock()
		persisted = append(persisted, entry)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := b.Apply(judged(fmt.Sprintf("s%02d", i), "A", fmt.Sprintf("p%d", i%3), result.VerdictWA, int64(i), time.Duration(i)*time.Minute), persist)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, persisted, 20)
	for i, entry := range persisted {
		assert.Len(t, entry.Attempts, i+1, "entries are persisted in apply order")
	}
}
