package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/stage"
	"callaudit/internal/testsupport"
)

func newScoreFixture(t *testing.T, completion string) (*Handler, *ledger.Store, *ledger.Call) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": completion}},
			},
		})
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.LLM.BaseURL = server.URL
	cfg.LLM.Model = "grader-1"

	store := testsupport.MustOpenStore(t, cfg)
	call := testsupport.NewQueuedCall(t, store, func(c *ledger.Call) {
		c.TemplateName = "support"
	})
	if err := store.ReplaceTranscript(context.Background(), call.ID, []ledger.TranscriptSegment{
		{SpeakerLabel: "agent", StartTime: 0, EndTime: 5, Text: "thanks for calling, how can I help", Confidence: 0.9},
		{SpeakerLabel: "customer", StartTime: 5, EndTime: 9, Text: "my invoice is wrong", Confidence: 0.9},
	}); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	library, err := LoadLibrary("")
	if err != nil {
		t.Fatalf("load library: %v", err)
	}
	handler := New(cfg, NewLLMClient(cfg.LLM), library, store, logging.NewNop())
	return handler, store, call
}

func TestScorePersistsEvaluation(t *testing.T) {
	completion := `{"scores":{"FCR":90,"EMP":80,"EFF":70,"SAT":60,"PRK":50},"summary":"Solid handling."}`
	handler, store, call := newScoreFixture(t, completion)

	result, err := handler.Execute(context.Background(), &stage.Request{Call: call, Artifacts: stage.Artifacts{}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	artifact, ok := result.(Artifact)
	if !ok {
		t.Fatalf("unexpected artifact type %T", result)
	}
	want := 90*0.30 + 80*0.25 + 70*0.20 + 60*0.15 + 50*0.10
	if artifact.OverallScore != want {
		t.Fatalf("expected %.2f, got %.2f", want, artifact.OverallScore)
	}

	eval, err := store.EvaluationForCall(context.Background(), call.ID)
	if err != nil {
		t.Fatalf("load evaluation: %v", err)
	}
	if eval.OverallScore != want || eval.PromptTemplate != "support" {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
}

func TestScoreRejectsIncompleteGrading(t *testing.T) {
	completion := `{"scores":{"FCR":90},"summary":"partial"}`
	handler, _, call := newScoreFixture(t, completion)

	if _, err := handler.Execute(context.Background(), &stage.Request{Call: call, Artifacts: stage.Artifacts{}}); err == nil {
		t.Fatal("missing pillar scores should fail the stage")
	}
}

func TestScoreRejectsOutOfRangeScores(t *testing.T) {
	completion := `{"scores":{"FCR":150,"EMP":80,"EFF":70,"SAT":60,"PRK":50},"summary":"bad"}`
	handler, _, call := newScoreFixture(t, completion)

	if _, err := handler.Execute(context.Background(), &stage.Request{Call: call, Artifacts: stage.Artifacts{}}); err == nil {
		t.Fatal("out-of-range pillar score should fail the stage")
	}
}
