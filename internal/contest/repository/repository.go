package repository

import (
	"context"
	"errors"

	"contestjudge/internal/contest/model"
)

var (
	ErrContestNotFound = errors.New("contest not found")
	ErrProblemNotFound = errors.New("problem not found")
)

// ContestRepository reads contests and their problems.
type ContestRepository interface {
	GetContest(ctx context.Context, contestID string) (model.Contest, error)
}

// GetProblem resolves a problem of a contest.
func GetProblem(ctx context.Context, repo ContestRepository, contestID, problemID string) (model.Contest, model.Problem, error) {
	contest, err := repo.GetContest(ctx, contestID)
	if err != nil {
		return model.Contest{}, model.Problem{}, err
	}
	problem, ok := contest.Problem(problemID)
	if !ok {
		return model.Contest{}, model.Problem{}, ErrProblemNotFound
	}
	return contest, problem, nil
}
