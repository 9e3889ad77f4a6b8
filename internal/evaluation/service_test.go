package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evallog"
	"github.com/felixgeelhaar/nahw/internal/lesson"
	"github.com/felixgeelhaar/nahw/internal/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const validOutput = `{
  "score": 85,
  "correct_points": ["هذا للمذكر القريب"],
  "incorrect_points": [],
  "missed_points": ["تلك للمؤنث البعيد"],
  "generated_feedback": "أحسنت، لكن تذكر أسماء الإشارة للبعيد.",
  "rewritten_answer": "هذا وهذه للقريب، وذلك وتلك للبعيد."
}`

// scriptedProvider returns a fixed completion and records prompts
type scriptedProvider struct {
	name   string
	output string
	err    error

	mu      sync.Mutex
	prompts []string
}

func (p *scriptedProvider) Name() string         { return p.name }
func (p *scriptedProvider) SupportsSchema() bool { return true }

func (p *scriptedProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, req.Messages[len(req.Messages)-1].Content)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.output}, nil
}

type fixedRetriever struct {
	context string
	err     error
	queries []string
}

func (r *fixedRetriever) Retrieve(_ context.Context, query string, _ int) (string, error) {
	r.queries = append(r.queries, query)
	return r.context, r.err
}

type failingRecorder struct{}

func (failingRecorder) Append(context.Context, domain.LogRecord) []*domain.LoggingWarning {
	return []*domain.LoggingWarning{{Sink: "csv", Err: errors.New("read-only file system")}}
}

var demonstratives = &domain.Lesson{
	ID:    "lesson1",
	Title: "اسم الإشارة",
	KeyPoints: []string{
		"هذا وهذه للقريب",
		"ذلك وتلك للبعيد",
	},
}

type fixture struct {
	svc       *Service
	providers map[string]*scriptedProvider
	retriever *fixedRetriever
	csvPath   string
	metrics   *Metrics
}

func newFixture(t *testing.T, providers ...*scriptedProvider) *fixture {
	t.Helper()

	registry := llm.NewRegistry()
	byName := map[string]*scriptedProvider{}
	for _, p := range providers {
		registry.Register(p.name, p)
		byName[p.name] = p
	}
	if len(providers) > 0 {
		if err := registry.SetDefault(providers[0].name); err != nil {
			t.Fatal(err)
		}
	}
	gateway := llm.NewGateway(registry, llm.GatewayConfig{System: "You are an expert Arabic language tutor."})

	csvPath := filepath.Join(t.TempDir(), "eval_dataset.csv")
	csvSink, err := evallog.NewCSVSink(csvPath)
	if err != nil {
		t.Fatal(err)
	}

	retriever := &fixedRetriever{context: "هذا: اسم إشارة للمفرد المذكر القريب\n---\nتلك: اسم إشارة للمفردة المؤنثة البعيدة"}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(retriever, gateway, evallog.NewFanout(nil, csvSink), Config{TopK: 4},
		WithLessons(lesson.NewRegistryFrom([]*domain.Lesson{demonstratives})),
		WithMetrics(metrics),
	)

	return &fixture{svc: svc, providers: byName, retriever: retriever, csvPath: csvPath, metrics: metrics}
}

func TestEvaluate_EndToEnd(t *testing.T) {
	f := newFixture(t, &scriptedProvider{name: "openai", output: "```json\n" + validOutput + "\n```"})
	answer := "هذا للقريب وذلك للبعيد"

	eval, err := f.svc.Evaluate(context.Background(), answer, demonstratives, "")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if eval.Result.Score != 85 {
		t.Errorf("Score = %d; want 85", eval.Result.Score)
	}
	if eval.Tier != domain.TierGood {
		t.Errorf("Tier = %q; want %q", eval.Tier, domain.TierGood)
	}
	if eval.Provider != "openai" || eval.LessonID != "lesson1" {
		t.Errorf("eval = %+v", eval)
	}
	if len(eval.Warnings) != 0 {
		t.Errorf("Warnings = %v", eval.Warnings)
	}

	sent := f.providers["openai"].prompts[0]
	for _, want := range []string{answer, "ذلك وتلك للبعيد", "تلك: اسم إشارة"} {
		if !strings.Contains(sent, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
	if f.retriever.queries[0] != answer {
		t.Errorf("retrieval query = %q; want the learner answer", f.retriever.queries[0])
	}

	rows, err := evallog.ReadCSV(f.csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("dataset rows = %d; want 1", len(rows))
	}
	if rows[0].Prompt != sent {
		t.Error("logged prompt should be the prompt sent to the model")
	}
	var logged domain.EvaluationResult
	if err := json.Unmarshal([]byte(rows[0].Response), &logged); err != nil {
		t.Fatalf("logged response: %v", err)
	}
	if logged.Score != 85 || logged.RewrittenAnswer != eval.Result.RewrittenAnswer {
		t.Errorf("logged = %+v", logged)
	}

	if got := testutil.ToFloat64(f.metrics.evaluations.WithLabelValues("openai", string(domain.TierGood))); got != 1 {
		t.Errorf("evaluations metric = %v; want 1", got)
	}
}

func TestEvaluate_ProviderSwitch(t *testing.T) {
	f := newFixture(t,
		&scriptedProvider{name: "openai", output: validOutput},
		&scriptedProvider{name: "gemini", output: validOutput},
	)
	ctx := context.Background()
	answer := "هذا وهذه للقريب"

	a, err := f.svc.Evaluate(ctx, answer, demonstratives, "openai")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Evaluate(ctx, answer, demonstratives, "gemini")
	if err != nil {
		t.Fatal(err)
	}

	ja, _ := json.Marshal(a.Result)
	jb, _ := json.Marshal(b.Result)
	if string(ja) != string(jb) {
		t.Errorf("results differ across providers:\n%s\n%s", ja, jb)
	}
	if a.Provider != "openai" || b.Provider != "gemini" {
		t.Errorf("providers = %q, %q", a.Provider, b.Provider)
	}
	if f.providers["openai"].prompts[0] != f.providers["gemini"].prompts[0] {
		t.Error("both providers should receive the identical prompt")
	}
}

func TestEvaluate_AppendsOneRowPerEvaluation(t *testing.T) {
	f := newFixture(t, &scriptedProvider{name: "openai", output: validOutput})

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Evaluate(context.Background(), "هذا كتاب", demonstratives, ""); err != nil {
				t.Errorf("Evaluate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	rows, err := evallog.ReadCSV(f.csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != n {
		t.Fatalf("rows = %d; want %d", len(rows), n)
	}
	for i, row := range rows {
		var r domain.EvaluationResult
		if err := json.Unmarshal([]byte(row.Response), &r); err != nil {
			t.Errorf("row %d: %v", i, err)
		}
	}
}

func TestEvaluate_InputValidation(t *testing.T) {
	f := newFixture(t, &scriptedProvider{name: "openai", output: validOutput})
	ctx := context.Background()

	if _, err := f.svc.Evaluate(ctx, "  \n", demonstratives, ""); !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Errorf("blank answer error = %v", err)
	}
	if _, err := f.svc.Evaluate(ctx, "هذا", nil, ""); !errors.Is(err, domain.ErrLessonNotFound) {
		t.Errorf("nil lesson error = %v", err)
	}
	if _, err := f.svc.Evaluate(ctx, "هذا", demonstratives, "mistral"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("unknown provider error = %v", err)
	}
	if len(f.retriever.queries) != 0 {
		t.Error("invalid input must not reach retrieval")
	}
	if len(f.providers["openai"].prompts) != 0 {
		t.Error("invalid input must not reach the model")
	}
}

func TestEvaluate_RetrievalUnavailable(t *testing.T) {
	f := newFixture(t, &scriptedProvider{name: "openai", output: validOutput})
	f.retriever.err = &domain.RetrievalUnavailableError{Source: "index.db", Err: errors.New("missing")}

	_, err := f.svc.Evaluate(context.Background(), "هذا", demonstratives, "")
	var unavailable *domain.RetrievalUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v; want RetrievalUnavailableError", err)
	}
	if len(f.providers["openai"].prompts) != 0 {
		t.Error("model must not be called without context")
	}
	if got := testutil.ToFloat64(f.metrics.failures.WithLabelValues("openai", domain.KindRetrievalUnavailable)); got != 1 {
		t.Errorf("failure metric = %v; want 1", got)
	}
}

func TestEvaluate_BackendError(t *testing.T) {
	f := newFixture(t, &scriptedProvider{name: "openai", err: &llm.StatusError{StatusCode: 401, Body: "bad key"}})

	_, err := f.svc.Evaluate(context.Background(), "هذا", demonstratives, "")
	var backend *domain.BackendError
	if !errors.As(err, &backend) {
		t.Fatalf("error = %v; want BackendError", err)
	}
	if rows, _ := evallog.ReadCSV(f.csvPath); len(rows) != 0 {
		t.Error("failed evaluations must not be logged")
	}
}

func TestEvaluate_RejectsMalformedOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		check  func(error) bool
	}{
		{"prose", "I think the student did well.", func(err error) bool {
			var e *domain.ParseError
			return errors.As(err, &e)
		}},
		{"score out of range", strings.Replace(validOutput, "85", "150", 1), func(err error) bool {
			var e *domain.SchemaError
			return errors.As(err, &e) && e.Field == domain.FieldScore
		}},
		{"missing rewritten answer", `{"score": 85, "correct_points": [], "incorrect_points": [], "missed_points": [], "generated_feedback": "f"}`, func(err error) bool {
			var e *domain.SchemaError
			return errors.As(err, &e) && e.Field == domain.FieldRewrittenAnswer
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &scriptedProvider{name: "openai", output: tt.output})
			eval, err := f.svc.Evaluate(context.Background(), "هذا", demonstratives, "")
			if eval != nil || !tt.check(err) {
				t.Fatalf("Evaluate() = %v, %v", eval, err)
			}
			if rows, _ := evallog.ReadCSV(f.csvPath); len(rows) != 0 {
				t.Error("rejected output must not be logged")
			}
		})
	}
}

func TestEvaluate_LogFailureIsWarning(t *testing.T) {
	registry := llm.NewRegistry()
	registry.Register("openai", &scriptedProvider{name: "openai", output: validOutput})
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(&fixedRetriever{context: "ctx"}, llm.NewGateway(registry, llm.GatewayConfig{}), failingRecorder{}, Config{}, WithMetrics(metrics))

	eval, err := svc.Evaluate(context.Background(), "هذا", demonstratives, "")
	if err != nil {
		t.Fatalf("Evaluate() error = %v; a log failure must not fail the evaluation", err)
	}
	if eval.Result == nil || eval.Result.Score != 85 {
		t.Errorf("Result = %+v", eval.Result)
	}
	if len(eval.Warnings) != 1 || eval.Warnings[0].Sink != "csv" {
		t.Errorf("Warnings = %v", eval.Warnings)
	}
	if msgs := eval.WarningMessages(); len(msgs) != 1 || !strings.Contains(msgs[0], "read-only") {
		t.Errorf("WarningMessages() = %v", msgs)
	}
	if got := testutil.ToFloat64(metrics.logWarnings.WithLabelValues("csv")); got != 1 {
		t.Errorf("log warning metric = %v; want 1", got)
	}
}

func TestEvaluateRequest(t *testing.T) {
	f := newFixture(t, &scriptedProvider{name: "openai", output: validOutput})
	ctx := context.Background()

	eval, err := f.svc.EvaluateRequest(ctx, Request{LearnerAnswer: "هذا", LessonID: "lesson1", Grounding: "preferred"})
	if err != nil {
		t.Fatalf("EvaluateRequest() error = %v", err)
	}
	if eval.Grounding != domain.GroundingPreferred {
		t.Errorf("Grounding = %q", eval.Grounding)
	}
	if strings.Contains(f.providers["openai"].prompts[0], "Never use your own knowledge") {
		t.Error("preferred grounding should not send the strict rule")
	}

	if _, err := f.svc.EvaluateRequest(ctx, Request{LearnerAnswer: "هذا", LessonID: "lesson9"}); !errors.Is(err, domain.ErrLessonNotFound) {
		t.Errorf("unknown lesson error = %v", err)
	}
	if _, err := f.svc.EvaluateRequest(ctx, Request{LearnerAnswer: "هذا", LessonID: "lesson1", Grounding: "loose"}); !errors.Is(err, domain.ErrInvalidGrounding) {
		t.Errorf("invalid grounding error = %v", err)
	}
	if _, err := f.svc.EvaluateRequest(ctx, Request{LessonID: "lesson1"}); !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Errorf("empty answer error = %v", err)
	}
}

func TestEvaluate_StrictGroundingByDefault(t *testing.T) {
	f := newFixture(t, &scriptedProvider{name: "openai", output: validOutput})
	eval, err := f.svc.Evaluate(context.Background(), "هذا", demonstratives, "")
	if err != nil {
		t.Fatal(err)
	}
	if eval.Grounding != domain.GroundingStrict {
		t.Errorf("Grounding = %q", eval.Grounding)
	}
	if !strings.Contains(f.providers["openai"].prompts[0], "Never use your own knowledge") {
		t.Error("strict grounding rule missing from prompt")
	}
}
