package service

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"contestjudge/internal/contest"
	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
	"contestjudge/internal/standings/model"
)

// DefaultPenaltyPerWrongAttempt is the penalty in minutes added for every
// rejected attempt before a problem's first AC.
const DefaultPenaltyPerWrongAttempt int64 = 20

// RankPolicy decides which rows share a rank.
type RankPolicy string

const (
	// TieOnScorePenalty shares rank on equal score and penalty.
	// LastAcceptedAt only orders the display within a tie.
	TieOnScorePenalty RankPolicy = "score_penalty"
	// TieOnScorePenaltyTime additionally requires equal LastAcceptedAt.
	TieOnScorePenaltyTime RankPolicy = "score_penalty_time"
)

var (
	ErrNotJudged     = errors.New("only judged submissions change standings")
	ErrWrongContest  = errors.New("event belongs to another contest")
	ErrMissingFields = errors.New("event is missing participant or problem")
)

// Attempt is one judged submission as the board remembers it.
type Attempt struct {
	SubmissionID string         `json:"submission_id"`
	ProblemID    string         `json:"problem_id"`
	Verdict      result.Verdict `json:"verdict"`
	Score        int64          `json:"score"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	JudgedAt     time.Time      `json:"judged_at"`
}

// orderedAt places an attempt in the participant's timeline. Events without a
// submission time fall back to their judge time.
func (a Attempt) orderedAt() time.Time {
	if a.SubmittedAt.IsZero() {
		return a.JudgedAt
	}
	return a.SubmittedAt
}

func compareAttempts(a, b Attempt) int {
	if c := a.orderedAt().Compare(b.orderedAt()); c != 0 {
		return c
	}
	if c := a.JudgedAt.Compare(b.JudgedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.SubmissionID, b.SubmissionID)
}

// BoardEntry is the persisted state of one participant. Standing is derived
// from Attempts and kept for readers of the snapshot.
type BoardEntry struct {
	Standing model.Standing `json:"standing"`
	Attempts []Attempt      `json:"attempts"`
}

type participant struct {
	mu       sync.Mutex
	standing model.Standing
	attempts map[string]Attempt // submissionID -> attempt
}

// Board is the leaderboard of one contest. Updates are serialized per
// participant; different participants update concurrently.
type Board struct {
	contestID       string
	startAt         time.Time
	penaltyPerWrong int64
	policy          RankPolicy

	participants sync.Map // participantID -> *participant
	version      atomic.Uint64
}

// NewBoard creates an empty board for a contest starting at startAt.
func NewBoard(contestID string, startAt time.Time, penaltyPerWrong int64, policy RankPolicy) *Board {
	if penaltyPerWrong < 0 {
		penaltyPerWrong = DefaultPenaltyPerWrongAttempt
	}
	if policy == "" {
		policy = TieOnScorePenalty
	}
	return &Board{
		contestID:       contestID,
		startAt:         startAt,
		penaltyPerWrong: penaltyPerWrong,
		policy:          policy,
	}
}

func (b *Board) ContestID() string {
	return b.contestID
}

// Version increases by one for every applied event.
func (b *Board) Version() uint64 {
	return b.version.Load()
}

func (b *Board) participant(id string) *participant {
	if p, ok := b.participants.Load(id); ok {
		return p.(*participant)
	}
	p, _ := b.participants.LoadOrStore(id, &participant{
		standing: model.Standing{ParticipantID: id, PerProblem: make(map[string]model.ProblemResult)},
		attempts: make(map[string]Attempt),
	})
	return p.(*participant)
}

// Apply merges one judged submission into the board. It returns false without
// changing anything when the submission was already applied. persist, when
// set, receives the new entry before the participant is unlocked, so entries
// of one participant are persisted in apply order.
func (b *Board) Apply(ev judgemodel.FinalStatusEvent, persist func(BoardEntry)) (bool, BoardEntry, error) {
	if ev.State != judgemodel.StateJudged {
		return false, BoardEntry{}, ErrNotJudged
	}
	if ev.ContestID != b.contestID {
		return false, BoardEntry{}, fmt.Errorf("%w: %s", ErrWrongContest, ev.ContestID)
	}
	if ev.ParticipantID == "" || ev.ProblemID == "" || ev.SubmissionID == "" {
		return false, BoardEntry{}, ErrMissingFields
	}

	p := b.participant(ev.ParticipantID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.attempts[ev.SubmissionID]; seen {
		return false, BoardEntry{}, nil
	}
	p.attempts[ev.SubmissionID] = Attempt{
		SubmissionID: ev.SubmissionID,
		ProblemID:    ev.ProblemID,
		Verdict:      ev.Verdict,
		Score:        ev.Score,
		SubmittedAt:  ev.SubmittedAt,
		JudgedAt:     ev.JudgedAt,
	}
	p.standing = b.derive(ev.ParticipantID, p.attempts)

	b.version.Add(1)
	entry := p.entry()
	if persist != nil {
		persist(entry)
	}
	return true, entry, nil
}

// derive computes a standing from the full set of attempts. The result does
// not depend on the order in which attempts were applied.
func (b *Board) derive(participantID string, attempts map[string]Attempt) model.Standing {
	byProblem := make(map[string][]Attempt)
	for _, a := range attempts {
		byProblem[a.ProblemID] = append(byProblem[a.ProblemID], a)
	}

	s := model.Standing{ParticipantID: participantID, PerProblem: make(map[string]model.ProblemResult, len(byProblem))}
	for problemID, list := range byProblem {
		slices.SortFunc(list, compareAttempts)
		pr := model.ProblemResult{Attempts: len(list)}
		for _, a := range list {
			if a.Score > pr.BestScore {
				pr.BestScore = a.Score
			}
			if pr.Solved() {
				continue
			}
			if a.Verdict != result.VerdictAC {
				pr.WrongAttempts++
				continue
			}
			solvedAt := a.JudgedAt
			pr.SolvedAt = &solvedAt
		}
		s.TotalScore += pr.BestScore
		if pr.Solved() {
			s.SolvedCount++
			s.Penalty += contest.Elapsed(b.startAt, *pr.SolvedAt) + b.penaltyPerWrong*int64(pr.WrongAttempts)
			if s.LastAcceptedAt == nil || pr.SolvedAt.After(*s.LastAcceptedAt) {
				last := *pr.SolvedAt
				s.LastAcceptedAt = &last
			}
		}
		s.PerProblem[problemID] = pr
	}
	return s
}

func (p *participant) entry() BoardEntry {
	attempts := make([]Attempt, 0, len(p.attempts))
	for _, a := range p.attempts {
		attempts = append(attempts, a)
	}
	slices.SortFunc(attempts, compareAttempts)
	return BoardEntry{Standing: p.standing.Clone(), Attempts: attempts}
}

// Restore loads a persisted participant entry, replacing any in-memory state.
// The standing is rebuilt from the entry's attempts.
func (b *Board) Restore(entry BoardEntry) {
	participantID := entry.Standing.ParticipantID
	attempts := make(map[string]Attempt, len(entry.Attempts))
	for _, a := range entry.Attempts {
		attempts[a.SubmissionID] = a
	}
	b.participants.Store(participantID, &participant{
		standing: b.derive(participantID, attempts),
		attempts: attempts,
	})
	b.version.Add(1)
}

// Standings returns every participant in leaderboard order with ranks assigned.
func (b *Board) Standings() []model.Standing {
	var rows []model.Standing
	b.participants.Range(func(_, v any) bool {
		p := v.(*participant)
		p.mu.Lock()
		rows = append(rows, p.standing.Clone())
		p.mu.Unlock()
		return true
	})
	SortStandings(rows)
	AssignRanks(rows, b.policy)
	return rows
}

// SortStandings orders rows by score desc, penalty asc, last accept asc and participant id.
func SortStandings(rows []model.Standing) {
	slices.SortFunc(rows, func(a, b model.Standing) int {
		if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Penalty, b.Penalty); c != 0 {
			return c
		}
		if c := compareAcceptedAt(a.LastAcceptedAt, b.LastAcceptedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
}

// AssignRanks numbers sorted rows. Tied rows share a rank and the next group
// starts at its position, giving 1, 1, 3.
func AssignRanks(rows []model.Standing, policy RankPolicy) {
	for i := range rows {
		if i > 0 && tied(rows[i-1], rows[i], policy) {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}
}

func tied(a, b model.Standing, policy RankPolicy) bool {
	if a.TotalScore != b.TotalScore || a.Penalty != b.Penalty {
		return false
	}
	if policy == TieOnScorePenaltyTime {
		return compareAcceptedAt(a.LastAcceptedAt, b.LastAcceptedAt) == 0
	}
	return true
}

// nil sorts after any time: a participant without an accept never wins a tie.
func compareAcceptedAt(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}
