package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/chatwoot"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/policy"
	"github.com/gestao-presente/orquestra/pkg/respcache"
	"github.com/gestao-presente/orquestra/pkg/router"
	"github.com/gestao-presente/orquestra/pkg/specialist"
)

type fakePlatform struct {
	sent       []string
	labels     [][]string
	teams      []string
	metas      []chatwoot.Meta
	opened     int
	failSend   error
	failLabels error
}

func (p *fakePlatform) SendMessage(_ context.Context, _ int, content string) error {
	p.sent = append(p.sent, content)
	return p.failSend
}

func (p *fakePlatform) SetLabels(_ context.Context, _ int, labels []string) error {
	p.labels = append(p.labels, labels)
	return p.failLabels
}

func (p *fakePlatform) AssignTeam(_ context.Context, _ int, teamID string) error {
	p.teams = append(p.teams, teamID)
	return nil
}

func (p *fakePlatform) UpdateConversationMeta(_ context.Context, _ int, meta chatwoot.Meta) error {
	p.metas = append(p.metas, meta)
	return nil
}

func (p *fakePlatform) SetConversationOpen(context.Context, int) error {
	p.opened++
	return nil
}

type fakeSpecialist struct {
	answer specialist.Answer
	err    error
	calls  int
}

func (s *fakeSpecialist) Answer(context.Context, string) (specialist.Answer, error) {
	s.calls++
	return s.answer, s.err
}

type fakeClassifier struct {
	decision router.Decision
	calls    int
}

func (c *fakeClassifier) Classify(context.Context, bus.InboundMessage) router.Decision {
	c.calls++
	return c.decision
}

type fixture struct {
	engine     *Engine
	platform   *fakePlatform
	specialist *fakeSpecialist
	classifier *fakeClassifier
}

func newFixture(t *testing.T, decision router.Decision, answer specialist.Answer, specErr error) *fixture {
	t.Helper()
	dir := directory.New("Suporte")
	dir.Load([]directory.Team{
		{Name: "Financeiro", ID: "10"},
		{Name: "Suporte", ID: "11"},
	})
	f := &fixture{
		platform:   &fakePlatform{},
		specialist: &fakeSpecialist{answer: answer, err: specErr},
		classifier: &fakeClassifier{decision: decision},
	}
	f.engine = NewEngine(
		dir,
		respcache.New(5*time.Minute, 16),
		f.classifier,
		f.specialist,
		f.platform,
		Config{ConfidenceThreshold: 0.7, Labels: policy.DefaultLabels()},
		nil,
	)
	return f
}

func inbound(id, content string, labels ...string) bus.InboundMessage {
	return bus.InboundMessage{ConversationID: 42, MessageID: id, Content: content, Labels: labels}
}

func TestProcess_ExplicitHumanRoute(t *testing.T) {
	decision := router.Decision{
		Route:  router.RouteHuman,
		Team:   &directory.Team{Name: "Financeiro", ID: "10"},
		Reason: "explicit_human_request",
		Source: router.SourceExplicitPattern,
	}
	f := newFixture(t, decision, specialist.Answer{}, nil)

	result := f.engine.Process(context.Background(), inbound("m1", "quero falar com o financeiro", "vip"))

	assert.Equal(t, StateDelivered, result.State)
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, handoffReply, f.platform.sent[0])
	require.Len(t, f.platform.labels, 1)
	assert.Equal(t, []string{"humano", "vip"}, f.platform.labels[0])
	assert.Equal(t, []string{"10"}, f.platform.teams)
	assert.Equal(t, 1, f.platform.opened)

	require.Len(t, f.platform.metas, 1)
	attrs := f.platform.metas[0].CustomAttributes
	assert.Equal(t, "human", attrs["orchestrator_route"])
	assert.Equal(t, "human_team", attrs["handled_by"])
	assert.Equal(t, 0.0, attrs["orchestrator_confidence"])
	assert.Equal(t, 0, f.specialist.calls)
}

func TestProcess_HumanLockStaysSilent(t *testing.T) {
	decision := router.Decision{Route: router.RouteHuman, Reason: "conversation_already_human", Source: router.SourceDefault}
	f := newFixture(t, decision, specialist.Answer{}, nil)

	result := f.engine.Process(context.Background(), inbound("m1", "ainda preciso de ajuda"))

	assert.Empty(t, f.platform.sent)
	assert.Empty(t, result.Reply)
	// Bare human route falls back to the default team.
	assert.Equal(t, []string{"11"}, f.platform.teams)
}

func TestProcess_DirectGreeting(t *testing.T) {
	decision := router.Decision{Route: router.RouteDirect, Reason: "smalltalk", Source: router.SourceKeywordFallback}
	f := newFixture(t, decision, specialist.Answer{}, nil)

	result := f.engine.Process(context.Background(), inbound("m1", "Oi"))

	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, greetingReply, f.platform.sent[0])
	assert.Equal(t, []string{"ia_orquestrador"}, f.platform.labels[0])
	assert.Equal(t, directConfidence, result.Confidence)
	assert.True(t, f.platform.metas[0].ClearAssignee)
	assert.Empty(t, f.platform.teams)
	assert.Equal(t, "agent_1_orchestrator", f.platform.metas[0].CustomAttributes["handled_by"])
}

func TestProcess_DirectNonGreeting(t *testing.T) {
	decision := router.Decision{Route: router.RouteDirect, Reason: "smalltalk", Source: router.SourceKeywordFallback}
	f := newFixture(t, decision, specialist.Answer{}, nil)

	f.engine.Process(context.Background(), inbound("m1", "valeu pela ajuda"))

	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, directReply, f.platform.sent[0])
}

func TestProcess_MecHighConfidence(t *testing.T) {
	decision := router.Decision{Route: router.RouteMec, Reason: "mec_domain_keyword", Source: router.SourceKeywordFallback}
	answer := specialist.Answer{Text: "O regimento define o TCC no artigo 12.", Confidence: 0.8}
	f := newFixture(t, decision, answer, nil)

	result := f.engine.Process(context.Background(), inbound("m1", "o que diz o regimento sobre TCC?"))

	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, answer.Text, f.platform.sent[0])
	assert.Equal(t, []string{"ia_mec"}, f.platform.labels[0])
	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, "agent_2_mec", f.platform.metas[0].CustomAttributes["handled_by"])
	assert.True(t, f.platform.metas[0].ClearAssignee)
	assert.Empty(t, f.platform.teams)
}

func TestProcess_MecCachedAnswerSkipsSpecialist(t *testing.T) {
	decision := router.Decision{Route: router.RouteMec, Reason: "mec_domain_keyword", Source: router.SourceKeywordFallback}
	answer := specialist.Answer{Text: "O regimento define o TCC no artigo 12.", Confidence: 0.8}
	f := newFixture(t, decision, answer, nil)

	f.engine.Process(context.Background(), inbound("m1", "O que diz o regimento sobre TCC?"))
	f.engine.Process(context.Background(), inbound("m2", "o que diz  o regimento sobre tcc?"))

	assert.Equal(t, 1, f.specialist.calls, "second ask must hit the cache")
	require.Len(t, f.platform.sent, 2)
	assert.Equal(t, answer.Text, f.platform.sent[1])
}

func TestProcess_MecLowConfidenceEscalates(t *testing.T) {
	decision := router.Decision{Route: router.RouteMec, Reason: "default_mec_route", Source: router.SourceDefault}
	answer := specialist.Answer{Text: "Não encontrei nada sobre isso nos documentos.", Confidence: 0.4}
	f := newFixture(t, decision, answer, nil)

	result := f.engine.Process(context.Background(), inbound("m1", "qual o telefone da reitoria?"))

	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, escalationReply, f.platform.sent[0])
	assert.Equal(t, []string{"ia_falha"}, f.platform.labels[0])
	assert.Equal(t, []string{"11"}, f.platform.teams)
	assert.Equal(t, "human_team_after_low_confidence", f.platform.metas[0].CustomAttributes["handled_by"])
	assert.Equal(t, 0.4, result.Confidence)
}

func TestProcess_ThresholdIsInclusive(t *testing.T) {
	decision := router.Decision{Route: router.RouteMec, Reason: "default_mec_route", Source: router.SourceDefault}
	answer := specialist.Answer{Text: "Resposta exatamente na fronteira de confiança.", Confidence: 0.7}
	f := newFixture(t, decision, answer, nil)

	f.engine.Process(context.Background(), inbound("m1", "pergunta na fronteira"))

	assert.Equal(t, []string{"ia_mec"}, f.platform.labels[0])
	assert.Equal(t, answer.Text, f.platform.sent[0])
}

func TestProcess_SpecialistFailureEscalates(t *testing.T) {
	decision := router.Decision{Route: router.RouteMec, Reason: "mec_domain_keyword", Source: router.SourceKeywordFallback}
	f := newFixture(t, decision, specialist.Answer{}, errors.New("upstream down"))

	result := f.engine.Process(context.Background(), inbound("m1", "o que diz a resolucao 5?"))

	assert.Equal(t, StateDelivered, result.State)
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, specialistDownReply, f.platform.sent[0])
	assert.Equal(t, []string{"ia_falha"}, f.platform.labels[0])
	assert.Equal(t, 0.0, result.Confidence)
}

func TestProcess_DuplicateRejectedWithoutSideEffects(t *testing.T) {
	decision := router.Decision{Route: router.RouteDirect, Reason: "smalltalk", Source: router.SourceKeywordFallback}
	f := newFixture(t, decision, specialist.Answer{}, nil)

	first := f.engine.Process(context.Background(), inbound("m1", "oi"))
	second := f.engine.Process(context.Background(), inbound("m1", "oi"))

	assert.Equal(t, StateDelivered, first.State)
	assert.Equal(t, StateRejected, second.State)
	assert.Equal(t, 1, f.classifier.calls)
	assert.Len(t, f.platform.sent, 1)
	assert.Equal(t, 1, f.platform.opened)
}

func TestProcess_SideEffectFailuresAreIsolated(t *testing.T) {
	decision := router.Decision{Route: router.RouteDirect, Reason: "smalltalk", Source: router.SourceKeywordFallback}
	f := newFixture(t, decision, specialist.Answer{}, nil)
	f.platform.failSend = errors.New("send boom")
	f.platform.failLabels = errors.New("labels boom")

	result := f.engine.Process(context.Background(), inbound("m1", "oi"))

	assert.Equal(t, StateDelivered, result.State)
	assert.Equal(t, 2, result.failedSteps())
	// Later steps still ran.
	assert.Len(t, f.platform.metas, 1)
	assert.Equal(t, 1, f.platform.opened)
}

func TestProcess_ForeignLabelsSurvive(t *testing.T) {
	decision := router.Decision{Route: router.RouteMec, Reason: "default_mec_route", Source: router.SourceDefault}
	answer := specialist.Answer{Text: "Resposta completa e suficientemente longa.", Confidence: 0.8}
	f := newFixture(t, decision, answer, nil)

	f.engine.Process(context.Background(), inbound("m1", "uma pergunta", "vip", "ia_falha", "billing"))

	require.Len(t, f.platform.labels, 1)
	assert.Equal(t, []string{"billing", "ia_mec", "vip"}, f.platform.labels[0])
}

func TestRun_ConsumesUntilBusCloses(t *testing.T) {
	decision := router.Decision{Route: router.RouteDirect, Reason: "smalltalk", Source: router.SourceKeywordFallback}
	f := newFixture(t, decision, specialist.Answer{}, nil)

	mb := bus.NewMessageBus()
	require.NoError(t, mb.PublishInbound(context.Background(), inbound("m1", "oi")))
	require.NoError(t, mb.PublishInbound(context.Background(), inbound("m2", "ola")))

	done := make(chan struct{})
	go func() {
		f.engine.Run(context.Background(), mb)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.classifier.calls == 2 }, time.Second, 5*time.Millisecond)
	mb.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after bus close")
	}
}

func TestDedupSet_TTLExpiry(t *testing.T) {
	d := newDedupSet(8, time.Minute)
	current := time.Unix(1000, 0)
	d.now = func() time.Time { return current }

	assert.True(t, d.Add("a"))
	assert.False(t, d.Add("a"))

	current = current.Add(time.Minute)
	assert.True(t, d.Add("a"), "expired id is fresh again")
}

func TestDedupSet_CapacityEviction(t *testing.T) {
	d := newDedupSet(2, time.Hour)

	assert.True(t, d.Add("a"))
	assert.True(t, d.Add("b"))
	assert.True(t, d.Add("c"))

	assert.Equal(t, 2, d.Len())
	assert.True(t, d.Add("a"), "oldest id was evicted")
}
