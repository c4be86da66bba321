package service

import (
	"context"
	"errors"
	"time"

	"contestjudge/internal/contest"
	"contestjudge/internal/contest/model"
	"contestjudge/internal/contest/repository"
	appErr "contestjudge/pkg/errors"
)

// PhaseView is the schedule of a contest as seen at Now.
type PhaseView struct {
	ContestID string        `json:"contest_id"`
	Phase     contest.Phase `json:"phase"`
	StartAt   time.Time     `json:"start_at"`
	EndAt     time.Time     `json:"end_at"`
	Now       time.Time     `json:"now"`
}

// ContestService answers schedule questions about contests.
type ContestService struct {
	repo repository.ContestRepository
	now  func() time.Time
}

func NewContestService(repo repository.ContestRepository, now func() time.Time) *ContestService {
	if now == nil {
		now = time.Now
	}
	return &ContestService{repo: repo, now: now}
}

// GetContest returns a contest or a ContestNotFound error.
func (s *ContestService) GetContest(ctx context.Context, contestID string) (model.Contest, error) {
	if contestID == "" {
		return model.Contest{}, appErr.ValidationError("contest_id", "required")
	}
	c, err := s.repo.GetContest(ctx, contestID)
	if err != nil {
		return model.Contest{}, mapRepoError(err)
	}
	return c, nil
}

// GetPhase recomputes the phase of a contest from the clock.
func (s *ContestService) GetPhase(ctx context.Context, contestID string) (PhaseView, error) {
	c, err := s.GetContest(ctx, contestID)
	if err != nil {
		return PhaseView{}, err
	}
	now := s.now()
	return PhaseView{
		ContestID: c.ID,
		Phase:     contest.PhaseAt(now, c.StartAt, c.EndAt),
		StartAt:   c.StartAt,
		EndAt:     c.EndAt,
		Now:       now,
	}, nil
}

// RequireRunning resolves the problem and rejects submissions outside the
// contest window with ContestNotRunning.
func (s *ContestService) RequireRunning(ctx context.Context, contestID, problemID string, at time.Time) (model.Contest, model.Problem, error) {
	c, err := s.GetContest(ctx, contestID)
	if err != nil {
		return model.Contest{}, model.Problem{}, err
	}
	if phase := contest.PhaseAt(at, c.StartAt, c.EndAt); phase != contest.PhaseRunning {
		return model.Contest{}, model.Problem{}, appErr.New(appErr.ContestNotRunning).
			WithMessagef("contest is %s", phase).
			WithDetail("phase", string(phase))
	}
	p, ok := c.Problem(problemID)
	if !ok {
		return model.Contest{}, model.Problem{}, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", problemID)
	}
	return c, p, nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrContestNotFound):
		return appErr.New(appErr.ContestNotFound)
	case errors.Is(err, repository.ErrProblemNotFound):
		return appErr.New(appErr.ProblemNotFound)
	default:
		return appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
}
