package tasks

import (
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

func TestCandidateExportTaskRoundTrip(t *testing.T) {
	task, err := NewCandidateExportTask(CandidateExportPayload{ExportID: "abc", Search: "ali", Sort: "oldest"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TypeCandidateExport {
		t.Fatalf("type = %q", task.Type())
	}
	got, err := ParseCandidateExportPayload(task)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ExportID != "abc" || got.Search != "ali" || got.Sort != "oldest" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestCandidateExportTaskRequiresID(t *testing.T) {
	if _, err := NewCandidateExportTask(CandidateExportPayload{}); err == nil {
		t.Fatal("expected error for empty export id")
	}
	for _, raw := range []string{"{", `{"search":"x"}`} {
		_, err := ParseCandidateExportPayload(asynq.NewTask(TypeCandidateExport, []byte(raw)))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("payload %s: expected SkipRetry, got %v", raw, err)
		}
	}
}
