// Package orchestrator runs the per-message state machine: classify,
// resolve a reply for the chosen route, and deliver the side effects
// to the conversation platform.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/chatwoot"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/policy"
	"github.com/gestao-presente/orquestra/pkg/respcache"
	"github.com/gestao-presente/orquestra/pkg/router"
	"github.com/gestao-presente/orquestra/pkg/specialist"
)

// State of one inbound message inside the engine.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateResolved   State = "resolved"
	StateDelivered  State = "delivered"
	StateRejected   State = "rejected"
)

// Platform is the conversation platform surface the engine delivers
// to. Satisfied by *chatwoot.Client.
type Platform interface {
	SendMessage(ctx context.Context, conversationID int, content string) error
	SetLabels(ctx context.Context, conversationID int, labels []string) error
	AssignTeam(ctx context.Context, conversationID int, teamID string) error
	UpdateConversationMeta(ctx context.Context, conversationID int, meta chatwoot.Meta) error
	SetConversationOpen(ctx context.Context, conversationID int) error
}

// Specialist answers domain questions. Satisfied by *specialist.Client.
type Specialist interface {
	Answer(ctx context.Context, query string) (specialist.Answer, error)
}

// Classifier decides the route. Satisfied by *router.Classifier.
type Classifier interface {
	Classify(ctx context.Context, msg bus.InboundMessage) router.Decision
}

// StepResult records one delivery side effect. The five steps are
// best effort and independent; a failed step never blocks the rest.
type StepResult struct {
	Step string
	Err  error
}

// Result is the outcome of processing one inbound message.
type Result struct {
	ProcessingID string
	State        State
	Decision     router.Decision
	Confidence   float64
	Reply        string
	Steps        []StepResult
}

func (r Result) failedSteps() int {
	n := 0
	for _, s := range r.Steps {
		if s.Err != nil {
			n++
		}
	}
	return n
}

const (
	defaultDedupCapacity = 1024
	defaultDedupTTL      = 10 * time.Minute

	// The orchestrator answers direct messages itself, with full
	// confidence in its own canned text.
	directConfidence = 0.95
)

const (
	greetingReply   = "Olá! Posso ajudar com dúvidas acadêmicas e regulatórias. Qual sua pergunta?"
	directReply     = "Entendi. Posso te ajudar com dúvidas sobre os documentos e regras acadêmicas."
	handoffReply    = "Entendido. Vou encaminhar seu atendimento para o time humano."
	escalationReply = "Não encontrei segurança suficiente para responder com precisão. " +
		"Vou encaminhar para um especialista humano."
	specialistDownReply = "⚠️ Desculpe, ocorreu um erro ao processar sua mensagem. Por favor, tente novamente."
)

type Config struct {
	ConfidenceThreshold float64
	Labels              policy.Labels
	DedupCapacity       int
	DedupTTL            time.Duration
}

type Engine struct {
	dir        *directory.Directory
	cache      *respcache.Cache
	classifier Classifier
	specialist Specialist
	platform   Platform
	cfg        Config
	dedup      *dedupSet
	log        *zap.Logger
}

func NewEngine(dir *directory.Directory, cache *respcache.Cache, classifier Classifier, spec Specialist, platform Platform, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = defaultDedupCapacity
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	return &Engine{
		dir:        dir,
		cache:      cache,
		classifier: classifier,
		specialist: spec,
		platform:   platform,
		cfg:        cfg,
		dedup:      newDedupSet(cfg.DedupCapacity, cfg.DedupTTL),
		log:        log.Named("orchestrator"),
	}
}

// Run consumes inbound messages until the bus closes or the context is
// cancelled. Meant to be launched once per worker goroutine.
func (e *Engine) Run(ctx context.Context, mb *bus.MessageBus) {
	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			return
		}
		e.Process(ctx, msg)
	}
}

// resolution is the route outcome before delivery.
type resolution struct {
	reply         string
	label         string
	handledBy     string
	confidence    float64
	assignTeamID  string
	clearAssignee bool
}

// Process drives one message through the state machine. It always
// returns a Result; delivery failures are recorded per step, never
// propagated.
func (e *Engine) Process(ctx context.Context, msg bus.InboundMessage) Result {
	result := Result{ProcessingID: uuid.NewString(), State: StateReceived}
	log := e.log.With(
		zap.String("processing_id", result.ProcessingID),
		zap.Int("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.MessageID),
	)

	if msg.MessageID != "" && !e.dedup.Add(msg.MessageID) {
		log.Debug("duplicate message discarded")
		result.State = StateRejected
		return result
	}

	result.Decision = e.classifier.Classify(ctx, msg)
	result.State = StateClassified
	log.Info("message classified",
		zap.String("route", string(result.Decision.Route)),
		zap.String("reason", result.Decision.Reason),
		zap.String("source", string(result.Decision.Source)),
	)

	var res resolution
	switch result.Decision.Route {
	case router.RouteHuman:
		res = e.resolveHuman(result.Decision)
	case router.RouteDirect:
		res = e.resolveDirect(msg.Content)
	default:
		res = e.resolveMec(ctx, msg.Content, log)
	}
	result.State = StateResolved
	result.Reply = res.reply
	result.Confidence = res.confidence

	result.Steps = e.deliver(ctx, msg, result.Decision, res, log)
	result.State = StateDelivered
	if n := result.failedSteps(); n > 0 {
		log.Warn("delivered with degraded side effects", zap.Int("failed_steps", n))
	}
	return result
}

func (e *Engine) resolveHuman(decision router.Decision) resolution {
	res := resolution{
		label:      e.cfg.Labels.Human,
		handledBy:  "human_team",
		confidence: 0,
	}
	// Confirmation text only when the user asked for a person; a
	// conversation that is merely locked to human stays silent.
	if decision.Reason == "explicit_human_request" {
		res.reply = handoffReply
	}
	if decision.Team != nil {
		res.assignTeamID = decision.Team.ID
	} else if team, err := e.dir.DefaultTeam(); err == nil {
		res.assignTeamID = team.ID
	}
	return res
}

func (e *Engine) resolveDirect(content string) resolution {
	return resolution{
		reply:         directAnswer(content),
		label:         e.cfg.Labels.Orchestrator,
		handledBy:     "agent_1_orchestrator",
		confidence:    directConfidence,
		clearAssignee: true,
	}
}

var greetingSet = map[string]bool{
	"oi": true, "ola": true, "bom dia": true, "boa tarde": true, "boa noite": true,
}

func directAnswer(content string) string {
	if greetingSet[respcache.Fingerprint(content)] {
		return greetingReply
	}
	return directReply
}

func (e *Engine) resolveMec(ctx context.Context, query string, log *zap.Logger) resolution {
	answer, hit := e.cache.Get(query)
	if hit {
		log.Debug("response cache hit")
	} else {
		var err error
		answer, err = e.specialist.Answer(ctx, query)
		if err != nil {
			log.Error("specialist failed, escalating", zap.Error(err))
			return e.escalation(specialistDownReply, 0)
		}
		e.cache.Put(query, answer)
	}

	outcome := policy.Decide(answer, e.cfg.ConfidenceThreshold, e.cfg.Labels)
	if !outcome.Deliver {
		return e.escalation(escalationReply, answer.Clamp().Confidence)
	}
	return resolution{
		reply:         answer.Text,
		label:         outcome.Label,
		handledBy:     "agent_2_mec",
		confidence:    answer.Clamp().Confidence,
		clearAssignee: true,
	}
}

// escalation builds the low-confidence (or specialist-failure) human
// handoff: apology text, failure label, default human team.
func (e *Engine) escalation(reply string, confidence float64) resolution {
	res := resolution{
		reply:      reply,
		label:      e.cfg.Labels.Failure,
		handledBy:  "human_team_after_low_confidence",
		confidence: confidence,
	}
	if team, err := e.dir.DefaultTeam(); err == nil {
		res.assignTeamID = team.ID
	}
	return res
}

// deliver applies the five platform side effects in order. Each one is
// isolated: failures are logged and recorded, the rest still run.
func (e *Engine) deliver(ctx context.Context, msg bus.InboundMessage, decision router.Decision, res resolution, log *zap.Logger) []StepResult {
	steps := make([]StepResult, 0, 5)
	record := func(step string, err error) {
		if err != nil {
			log.Warn("delivery side effect failed", zap.String("step", step), zap.Error(err))
		}
		steps = append(steps, StepResult{Step: step, Err: err})
	}

	if res.reply != "" {
		record("send_message", e.platform.SendMessage(ctx, msg.ConversationID, res.reply))
	}

	labels := e.cfg.Labels.Compose(msg.Labels, res.label)
	record("set_labels", e.platform.SetLabels(ctx, msg.ConversationID, labels))

	if res.assignTeamID != "" {
		record("assign_team", e.platform.AssignTeam(ctx, msg.ConversationID, res.assignTeamID))
	}

	record("update_meta", e.platform.UpdateConversationMeta(ctx, msg.ConversationID, chatwoot.Meta{
		CustomAttributes: map[string]any{
			"orchestrator_route":      string(decision.Route),
			"orchestrator_reason":     decision.Reason,
			"orchestrator_confidence": res.confidence,
			"orchestrator_ts":         time.Now().Unix(),
			"handled_by":              res.handledBy,
			"first_interaction":       msg.FirstInteraction,
		},
		ClearAssignee: res.clearAssignee,
	}))

	record("open_conversation", e.platform.SetConversationOpen(ctx, msg.ConversationID))
	return steps
}
