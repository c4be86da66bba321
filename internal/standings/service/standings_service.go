package service

import (
	"context"
	"errors"
	"sync"
	"time"

	contestmodel "contestjudge/internal/contest/model"
	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/standings/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultSnapshotTimeout = 2 * time.Second

// ContestReader resolves the contest a board belongs to.
type ContestReader interface {
	GetContest(ctx context.Context, contestID string) (contestmodel.Contest, error)
}

// SnapshotStore persists board entries so standings survive a restart.
type SnapshotStore interface {
	SaveEntry(ctx context.Context, contestID string, entry BoardEntry) error
	LoadEntries(ctx context.Context, contestID string) ([]BoardEntry, error)
}

// Config holds standings settings.
type Config struct {
	Contests  ContestReader
	Snapshots SnapshotStore

	// PenaltyPerWrongAttempt in minutes. Nil means DefaultPenaltyPerWrongAttempt.
	PenaltyPerWrongAttempt *int64
	RankPolicy             RankPolicy
	SnapshotTimeout        time.Duration
}

type boardSlot struct {
	ready chan struct{}
	board *Board
	err   error
}

// StandingsService keeps one Board per contest and feeds it judged submissions.
type StandingsService struct {
	contests        ContestReader
	snapshots       SnapshotStore
	penaltyPerWrong int64
	policy          RankPolicy
	snapshotTimeout time.Duration

	mu     sync.Mutex
	boards map[string]*boardSlot
	hub    *hub
}

func NewStandingsService(cfg Config) *StandingsService {
	penaltyPerWrong := DefaultPenaltyPerWrongAttempt
	if cfg.PenaltyPerWrongAttempt != nil && *cfg.PenaltyPerWrongAttempt >= 0 {
		penaltyPerWrong = *cfg.PenaltyPerWrongAttempt
	}
	if cfg.RankPolicy == "" {
		cfg.RankPolicy = TieOnScorePenalty
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = defaultSnapshotTimeout
	}
	return &StandingsService{
		contests:        cfg.Contests,
		snapshots:       cfg.Snapshots,
		penaltyPerWrong: penaltyPerWrong,
		policy:          cfg.RankPolicy,
		snapshotTimeout: cfg.SnapshotTimeout,
		boards:          make(map[string]*boardSlot),
		hub:             newHub(),
	}
}

// HandleTerminal lets the service be registered as a judge terminal handler.
func (s *StandingsService) HandleTerminal(ctx context.Context, sub judgemodel.Submission) error {
	return s.HandleFinalStatus(ctx, judgemodel.NewFinalStatusEvent(sub))
}

// HandleFinalStatus applies a judged submission. Failed submissions and
// redeliveries are ignored.
func (s *StandingsService) HandleFinalStatus(ctx context.Context, ev judgemodel.FinalStatusEvent) error {
	if ev.State != judgemodel.StateJudged {
		standingsApplyTotal.WithLabelValues("ignored").Inc()
		logger.Debug(ctx, "standings skip non-judged submission",
			zap.String("submission_id", ev.SubmissionID),
			zap.String("state", string(ev.State)),
		)
		return nil
	}
	board, err := s.board(ctx, ev.ContestID)
	if err != nil {
		return err
	}
	applied, _, err := board.Apply(ev, func(entry BoardEntry) {
		s.saveEntry(ctx, ev.ContestID, entry)
	})
	if err != nil {
		standingsApplyTotal.WithLabelValues("invalid").Inc()
		return appErr.Wrapf(err, appErr.InvalidParams, "apply submission %s failed", ev.SubmissionID)
	}
	if !applied {
		standingsApplyTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	standingsApplyTotal.WithLabelValues("applied").Inc()

	if s.hub.count(ev.ContestID) > 0 {
		// Version is read before the rows so the rows are never older than it.
		version := board.Version()
		s.hub.broadcast(model.Update{
			ContestID: ev.ContestID,
			Version:   version,
			Standings: board.Standings(),
		})
	}
	return nil
}

// saveEntry runs under the participant lock of the board.
func (s *StandingsService) saveEntry(ctx context.Context, contestID string, entry BoardEntry) {
	if s.snapshots == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.snapshotTimeout)
	defer cancel()
	if err := s.snapshots.SaveEntry(saveCtx, contestID, entry); err != nil {
		logger.Error(ctx, "save standings entry failed",
			zap.String("contest_id", contestID),
			zap.String("participant_id", entry.Standing.ParticipantID),
			zap.Error(err),
		)
	}
}

// GetStandings returns the ranked leaderboard of a contest.
func (s *StandingsService) GetStandings(ctx context.Context, contestID string) ([]model.Standing, error) {
	board, err := s.board(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return board.Standings(), nil
}

// Subscribe streams board updates for a contest until cancel is called.
// The first value received is the current board.
func (s *StandingsService) Subscribe(ctx context.Context, contestID string) (<-chan model.Update, func(), error) {
	board, err := s.board(ctx, contestID)
	if err != nil {
		return nil, nil, err
	}
	version := board.Version()
	ch, cancel := s.hub.subscribe(contestID, model.Update{
		ContestID: contestID,
		Version:   version,
		Standings: board.Standings(),
	})
	standingsSubscribers.Inc()
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			standingsSubscribers.Dec()
			cancel()
		})
	}
	return ch, unsubscribe, nil
}

func (s *StandingsService) board(ctx context.Context, contestID string) (*Board, error) {
	if contestID == "" {
		return nil, appErr.ValidationError("contest_id", "required")
	}
	s.mu.Lock()
	slot, ok := s.boards[contestID]
	if !ok {
		slot = &boardSlot{ready: make(chan struct{})}
		s.boards[contestID] = slot
		s.mu.Unlock()

		slot.board, slot.err = s.loadBoard(context.WithoutCancel(ctx), contestID)
		if slot.err != nil {
			s.mu.Lock()
			delete(s.boards, contestID)
			s.mu.Unlock()
		}
		close(slot.ready)
	} else {
		s.mu.Unlock()
	}

	select {
	case <-slot.ready:
		return slot.board, slot.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *StandingsService) loadBoard(ctx context.Context, contestID string) (*Board, error) {
	if s.contests == nil {
		return nil, errors.New("standings: contest reader is not configured")
	}
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	board := NewBoard(contest.ID, contest.StartAt, s.penaltyPerWrong, s.policy)
	if s.snapshots == nil {
		return board, nil
	}
	loadCtx, cancel := context.WithTimeout(ctx, s.snapshotTimeout)
	defer cancel()
	entries, err := s.snapshots.LoadEntries(loadCtx, contestID)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		board.Restore(entry)
	}
	if len(entries) > 0 {
		logger.Info(ctx, "standings restored",
			zap.String("contest_id", contestID),
			zap.Int("participants", len(entries)),
		)
	}
	return board, nil
}
