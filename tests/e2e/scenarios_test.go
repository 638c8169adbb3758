package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/chatwoot"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/orchestrator"
	"github.com/gestao-presente/orquestra/pkg/policy"
	"github.com/gestao-presente/orquestra/pkg/respcache"
	"github.com/gestao-presente/orquestra/pkg/router"
	"github.com/gestao-presente/orquestra/pkg/specialist"
)

// fakeChatwoot is an in-memory Chatwoot API double. The real REST
// client talks to it over HTTP, so the full delivery path is covered.
type fakeChatwoot struct {
	mu       sync.Mutex
	sent     []string
	labels   [][]string
	assigned []string
	patches  []map[string]any
}

func (f *fakeChatwoot) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/teams"):
			fmt.Fprint(w, `{"payload":[{"id":10,"name":"Financeiro"},{"id":11,"name":"Suporte"}]}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.sent = append(f.sent, body["content"].(string))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/labels"):
			var body struct {
				Labels []string `json:"labels"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.labels = append(f.labels, body.Labels)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/assignments"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.assigned = append(f.assigned, fmt.Sprintf("%v", body["team_id"]))
		case r.Method == http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.patches = append(f.patches, body)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (f *fakeChatwoot) snapshot() (sent []string, labels [][]string, assigned []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...),
		append([][]string(nil), f.labels...),
		append([]string(nil), f.assigned...)
}

func (f *fakeChatwoot) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChatwoot) labelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.labels)
}

// scriptedCompleter answers specialist questions from a fixed script
// and counts invocations.
type scriptedCompleter struct {
	mu    sync.Mutex
	reply func(user string) string
	calls int
}

func (s *scriptedCompleter) Complete(_ context.Context, _, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply(user), nil
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type pipeline struct {
	engine   *orchestrator.Engine
	platform *fakeChatwoot
	spec     *scriptedCompleter
}

func newPipeline(t *testing.T, reply func(string) string) *pipeline {
	t.Helper()

	platform := &fakeChatwoot{}
	api := httptest.NewServer(platform.handler())
	t.Cleanup(api.Close)

	client := chatwoot.NewClient(api.URL, "token", "7", nil)
	dir := directory.New("Suporte")
	require.NoError(t, dir.Refresh(context.Background(), client))
	require.Equal(t, 2, dir.Len())

	spec := &scriptedCompleter{reply: reply}
	labels := policy.DefaultLabels()
	classifier := router.New(dir, labels, nil, router.Config{}, nil)
	engine := orchestrator.NewEngine(
		dir,
		respcache.New(5*time.Minute, 64),
		classifier,
		specialist.NewClient(spec, 5*time.Second, nil),
		client,
		orchestrator.Config{ConfidenceThreshold: 0.7, Labels: labels},
		nil,
	)
	return &pipeline{engine: engine, platform: platform, spec: spec}
}

func (p *pipeline) process(id, content string, labels ...string) orchestrator.Result {
	return p.engine.Process(context.Background(), bus.InboundMessage{
		ConversationID: 42,
		MessageID:      id,
		AccountID:      "7",
		Content:        content,
		Labels:         labels,
	})
}

func TestScenario_ExplicitHumanRequestAssignsTeam(t *testing.T) {
	p := newPipeline(t, func(string) string { return "" })

	result := p.process("m1", "Quero falar com a equipe financeira")

	assert.Equal(t, orchestrator.StateDelivered, result.State)
	sent, labels, assigned := p.platform.snapshot()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "encaminhar seu atendimento")
	require.Len(t, labels, 1)
	assert.Equal(t, []string{"humano"}, labels[0])
	assert.Equal(t, []string{"10"}, assigned)
	assert.Equal(t, 0, p.spec.callCount())
}

func TestScenario_SmalltalkAnsweredDirectly(t *testing.T) {
	p := newPipeline(t, func(string) string { return "" })

	result := p.process("m1", "oi, tudo bem?")

	assert.Equal(t, router.RouteDirect, result.Decision.Route)
	sent, labels, assigned := p.platform.snapshot()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Posso te ajudar")
	assert.Equal(t, []string{"ia_orquestrador"}, labels[0])
	assert.Empty(t, assigned)
	assert.Equal(t, 0, p.spec.callCount())
}

func TestScenario_ConfidentSpecialistAnswerDelivered(t *testing.T) {
	answer := "O regimento trata do TCC no capítulo 4, artigos 12 a 19."
	p := newPipeline(t, func(string) string { return answer })

	result := p.process("m1", "o que diz o regimento sobre o tcc?")

	assert.Equal(t, 0.8, result.Confidence)
	sent, labels, assigned := p.platform.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, answer, sent[0])
	assert.Equal(t, []string{"ia_mec"}, labels[0])
	assert.Empty(t, assigned)
}

func TestScenario_RepeatedQuestionServedFromCache(t *testing.T) {
	answer := "O regimento trata do TCC no capítulo 4, artigos 12 a 19."
	p := newPipeline(t, func(string) string { return answer })

	p.process("m1", "O que diz o regimento sobre o TCC?")
	p.process("m2", "o que diz o regimento   sobre o tcc?")

	assert.Equal(t, 1, p.spec.callCount(), "second question must hit the cache")
	sent, _, _ := p.platform.snapshot()
	require.Len(t, sent, 2)
	assert.Equal(t, answer, sent[1])
}

func TestScenario_LowConfidenceEscalatesToHumans(t *testing.T) {
	p := newPipeline(t, func(string) string {
		return "Não encontrei essa informação nos documentos."
	})

	result := p.process("m1", "qual a carga horaria do curso noturno de 1987?")

	assert.Equal(t, 0.4, result.Confidence)
	sent, labels, assigned := p.platform.snapshot()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "especialista humano")
	assert.Equal(t, []string{"ia_falha"}, labels[0])
	assert.Equal(t, []string{"11"}, assigned, "default support team takes over")
}

func TestScenario_DuplicateMessageIsDiscarded(t *testing.T) {
	p := newPipeline(t, func(string) string { return "" })

	first := p.process("m1", "oi")
	second := p.process("m1", "oi")

	assert.Equal(t, orchestrator.StateDelivered, first.State)
	assert.Equal(t, orchestrator.StateRejected, second.State)
	assert.Equal(t, 1, p.platform.sentCount())
	assert.Equal(t, 1, p.platform.labelCount())
}

func TestScenario_ForeignLabelsPreservedAcrossRoutes(t *testing.T) {
	p := newPipeline(t, func(string) string { return "" })

	p.process("m1", "bom dia", "vip", "ia_falha")

	_, labels, _ := p.platform.snapshot()
	require.Len(t, labels, 1)
	assert.Equal(t, []string{"ia_orquestrador", "vip"}, labels[0])
}
