package model_test

import (
	"testing"

	"llmtxt/internal/model"
)

func TestCrawlResult_SuccessRate(t *testing.T) {
	cases := []struct {
		name   string
		result model.CrawlResult
		want   float64
	}{
		{"empty", model.CrawlResult{}, 0},
		{"all succeeded", model.CrawlResult{Pages: make([]model.PageRecord, 4)}, 1},
		{"half failed", model.CrawlResult{
			Pages:      make([]model.PageRecord, 2),
			FailedURLs: []string{"a", "b"},
		}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.result.SuccessRate(); got != tc.want {
				t.Errorf("SuccessRate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := []model.Status{model.StatusCompleted, model.StatusFailed, model.StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}

	nonTerminal := []model.Status{model.StatusPending, model.StatusRunning}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}

func TestFileType_Valid(t *testing.T) {
	if !model.FileLLMTxt.Valid() || !model.FileLLMSFullTxt.Valid() {
		t.Errorf("expected both defined file types to be valid")
	}
	if model.FileType("something-else").Valid() {
		t.Errorf("expected an unrecognized file type to be invalid")
	}
}

func TestJob_AppendLog(t *testing.T) {
	j := &model.Job{}
	j.AppendLog("started")
	j.AppendLog("finished")

	if len(j.ProcessingLog) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(j.ProcessingLog))
	}
	if j.ProcessingLog[0].Message != "started" || j.ProcessingLog[1].Message != "finished" {
		t.Errorf("expected log entries in append order, got %+v", j.ProcessingLog)
	}
	if j.ProcessingLog[0].Time.IsZero() {
		t.Errorf("expected AppendLog to stamp a non-zero time")
	}
}
