package repository

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"contestjudge/internal/contest/model"

	"gopkg.in/yaml.v3"
)

// Catalog is an in-memory ContestRepository, typically loaded from a YAML file.
type Catalog struct {
	mu       sync.RWMutex
	contests map[string]model.Contest
}

type catalogFile struct {
	Contests []model.Contest `yaml:"contests"`
}

// NewCatalog creates a catalog holding the given contests.
func NewCatalog(contests ...model.Contest) (*Catalog, error) {
	c := &Catalog{contests: make(map[string]model.Contest, len(contests))}
	for _, contest := range contests {
		if err := c.Put(contest); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadCatalog reads a YAML file of the form:
//
//	contests:
//	  - id: spring
//	    startAt: 2026-05-01T09:00:00Z
//	    endAt: 2026-05-01T12:00:00Z
//	    problems:
//	      - id: a
//	        timeLimitMs: 1000
//	        testCases: [{id: a1, input: "1 2", expectedOutput: "3", points: 100}]
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog failed: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog failed: %w", err)
	}
	return NewCatalog(file.Contests...)
}

// Put adds or replaces a contest after validating it.
func (c *Catalog) Put(contest model.Contest) error {
	if err := Validate(contest); err != nil {
		return err
	}
	c.mu.Lock()
	c.contests[contest.ID] = contest
	c.mu.Unlock()
	return nil
}

func (c *Catalog) GetContest(ctx context.Context, contestID string) (model.Contest, error) {
	c.mu.RLock()
	contest, ok := c.contests[contestID]
	c.mu.RUnlock()
	if !ok {
		return model.Contest{}, ErrContestNotFound
	}
	return contest, nil
}

// Contests returns every contest in the catalog, ordered by id.
func (c *Catalog) Contests() []model.Contest {
	c.mu.RLock()
	out := make([]model.Contest, 0, len(c.contests))
	for _, contest := range c.contests {
		out = append(out, contest)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks the schedule and problem definitions of a contest.
func Validate(contest model.Contest) error {
	if contest.ID == "" {
		return fmt.Errorf("contest id is required")
	}
	if contest.StartAt.IsZero() || contest.EndAt.IsZero() {
		return fmt.Errorf("contest %s: startAt and endAt are required", contest.ID)
	}
	if contest.EndAt.Before(contest.StartAt) {
		return fmt.Errorf("contest %s: endAt is before startAt", contest.ID)
	}
	seen := make(map[string]struct{}, len(contest.Problems))
	for _, p := range contest.Problems {
		if p.ID == "" {
			return fmt.Errorf("contest %s: problem id is required", contest.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("contest %s: duplicate problem %s", contest.ID, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.TimeLimitMs <= 0 {
			return fmt.Errorf("contest %s: problem %s: timeLimitMs must be positive", contest.ID, p.ID)
		}
		for _, tc := range p.TestCases {
			if tc.Points < 0 {
				return fmt.Errorf("contest %s: problem %s: negative points on %s", contest.ID, p.ID, tc.ID)
			}
		}
	}
	return nil
}
