package objectstore_test

import (
	"testing"

	"llmtxt/internal/objectstore"
)

func TestStatusKey(t *testing.T) {
	if got, want := objectstore.StatusKey("job-123"), "jobs/job-123/status.json"; got != want {
		t.Errorf("StatusKey() = %q, want %q", got, want)
	}
}

func TestArtifactKey(t *testing.T) {
	cases := []struct {
		jobID, filename, want string
	}{
		{"job-123", "llm.txt", "jobs/job-123/llm.txt"},
		{"job-123", "llms-full.txt", "jobs/job-123/llms-full.txt"},
	}
	for _, tc := range cases {
		if got := objectstore.ArtifactKey(tc.jobID, tc.filename); got != tc.want {
			t.Errorf("ArtifactKey(%q, %q) = %q, want %q", tc.jobID, tc.filename, got, tc.want)
		}
	}
}
