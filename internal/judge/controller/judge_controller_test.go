package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
	appErr "contestjudge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type fakeJudge struct {
	live map[string]model.Submission
}

func (f fakeJudge) Get(id string) (model.Submission, bool) {
	sub, ok := f.live[id]
	return sub, ok
}

func (f fakeJudge) ActiveCount() int { return len(f.live) }

type fakeStatus map[string]model.Submission

func (f fakeStatus) Get(ctx context.Context, id string) (model.Submission, error) {
	sub, ok := f[id]
	if !ok {
		return model.Submission{}, appErr.New(appErr.SubmissionNotFound)
	}
	return sub, nil
}

func TestJudgeControllerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewJudgeController(
		fakeJudge{live: map[string]model.Submission{"live": {ID: "live", SourceCode: "secret", State: model.StateJudging}}},
		fakeStatus{"done": {ID: "done", State: model.StateFailed, Verdict: result.VerdictSE, ErrorDetail: "watchdog expired"}},
	)
	r := gin.New()
	r.GET("/judge/submissions/:id", h.GetStatus)
	r.GET("/judge/stats", h.Stats)

	cases := []struct {
		path   string
		status int
		check  func(t *testing.T, sub model.Submission)
	}{
		{"/judge/submissions/live", http.StatusOK, func(t *testing.T, sub model.Submission) {
			if sub.SourceCode != "" || sub.State != model.StateJudging {
				t.Fatalf("unexpected live view: %+v", sub)
			}
		}},
		{"/judge/submissions/done", http.StatusOK, func(t *testing.T, sub model.Submission) {
			if sub.ErrorDetail != "watchdog expired" {
				t.Fatalf("operator view lost error detail: %+v", sub)
			}
		}},
		{"/judge/submissions/none", http.StatusNotFound, nil},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.status {
			t.Fatalf("%s: status = %d", tc.path, w.Code)
		}
		if tc.check == nil {
			continue
		}
		var body struct {
			Data model.Submission `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		tc.check(t, body.Data)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/judge/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
}
