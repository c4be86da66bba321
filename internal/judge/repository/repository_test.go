package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/mq"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
	appErr "contestjudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStatusRepo(t *testing.T) (*StatusRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return NewStatusRepository(c, time.Hour), mr
}

func judgedSubmission() model.Submission {
	judgedAt := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	return model.Submission{
		ID:            "sub-1",
		ContestID:     "c1",
		ProblemID:     "p1",
		ParticipantID: "alice",
		Language:      "cpp",
		SourceCode:    "int main() {}",
		State:         model.StateJudged,
		TestCount:     1,
		TestCaseResults: []result.TestCaseResult{
			{TestCaseID: "tc0", Index: 0, Points: 100, Outcome: result.VerdictAC},
		},
		Verdict:     result.VerdictAC,
		Score:       100,
		MaxScore:    100,
		SubmittedAt: time.Date(2026, 3, 1, 10, 4, 0, 0, time.UTC),
		JudgedAt:    &judgedAt,
	}
}

func TestStatusRepositorySaveAndGet(t *testing.T) {
	repo, mr := newStatusRepo(t)
	ctx := context.Background()
	sub := judgedSubmission()

	if err := repo.Save(ctx, sub); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := repo.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SourceCode != "" {
		t.Fatalf("source code leaked into status cache")
	}
	if got.Verdict != result.VerdictAC || got.Score != 100 || len(got.TestCaseResults) != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if ttl := mr.TTL(statusKeyPrefix + "sub-1"); ttl < time.Hour {
		t.Fatalf("terminal status ttl too short: %v", ttl)
	}
}

func TestStatusRepositoryMissing(t *testing.T) {
	repo, _ := newStatusRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
	if err := repo.Save(context.Background(), model.Submission{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.messages = append(f.messages, message)
	return nil
}

func TestPublisherRoundTrip(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewMQStatusEventPublisher(producer, "")
	sub := judgedSubmission()

	if err := pub.HandleTerminal(context.Background(), sub); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if producer.topic != DefaultFinalStatusTopic || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish: %q %d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.ID != "sub-1" {
		t.Fatalf("message id = %q", msg.ID)
	}
	if v, _ := msg.GetHeader("contest_id"); v != "c1" {
		t.Fatalf("contest header = %q", v)
	}
	ev, err := DecodeFinalStatusEvent(msg)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.Score != 100 || ev.Verdict != result.VerdictAC || !ev.JudgedAt.Equal(*sub.JudgedAt) {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestPublisherRejectsNonTerminal(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewMQStatusEventPublisher(producer, "t")
	sub := judgedSubmission()
	sub.State = model.StateJudging
	if err := pub.HandleTerminal(context.Background(), sub); err == nil {
		t.Fatalf("expected error for non-terminal submission")
	}

	producer.err = errors.New("broker down")
	if err := pub.HandleTerminal(context.Background(), judgedSubmission()); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}
