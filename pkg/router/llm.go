package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/providers"
	"github.com/gestao-presente/orquestra/pkg/textutil"
)

// Verdict is the LLM reply decoded once at the boundary. Raw text is
// never passed around: HUMAN:<team> | HUMAN | MEC | DIRECT.
type Verdict struct {
	Route    Route
	TeamName string
}

var errUnparsableVerdict = errors.New("unparsable classifier verdict")

var teamToken = regexp.MustCompile(`human[:\s]+([a-z0-9_-]+)`)

// ParseVerdict decodes a classifier reply. Tolerant of trailing
// punctuation or short explanations, like the upstream classifier.
func ParseVerdict(raw string) (Verdict, error) {
	value := textutil.Fold(raw)
	switch {
	case strings.Contains(value, "human"):
		verdict := Verdict{Route: RouteHuman}
		if m := teamToken.FindStringSubmatch(value); m != nil {
			verdict.TeamName = m[1]
		}
		return verdict, nil
	case strings.Contains(value, "direct"):
		return Verdict{Route: RouteDirect}, nil
	case strings.Contains(value, "mec"):
		return Verdict{Route: RouteMec}, nil
	}
	return Verdict{}, fmt.Errorf("%w: %q", errUnparsableVerdict, raw)
}

const defaultLLMTimeout = 10 * time.Second

type llmStrategy struct {
	dir       *directory.Directory
	completer providers.Completer
	timeout   time.Duration
	log       *zap.Logger
}

func newLLMStrategy(dir *directory.Directory, completer providers.Completer, timeout time.Duration, log *zap.Logger) *llmStrategy {
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}
	return &llmStrategy{dir: dir, completer: completer, timeout: timeout, log: log}
}

func (s *llmStrategy) Name() string { return "llm_classifier" }

func (s *llmStrategy) prompt() string {
	teamList := strings.Join(s.dir.Names(), ", ")
	if teamList == "" {
		teamList = "suporte"
	}
	return "Você é um classificador de roteamento para atendimento. " +
		"Classifique a mensagem em uma rota: MEC, HUMAN ou DIRECT. " +
		"Use HUMAN quando o usuário pedir pessoa/time/suporte (qualquer idioma). " +
		"Times disponíveis: " + teamList + ". " +
		"Se identificar um time específico na mensagem, responda: HUMAN:<nome_do_time> " +
		"usando EXATAMENTE um dos nomes disponíveis (" + teamList + "). " +
		"Se não identificar time específico, responda apenas: HUMAN. " +
		"Use DIRECT para smalltalk/saudações/agradecimentos. " +
		"Use MEC para dúvidas acadêmicas, regulatórias e de documentos. " +
		"Exemplos: 'HUMAN:financeiro', 'HUMAN:suporte', 'HUMAN', 'MEC', 'DIRECT'."
}

// Attempt asks the classifier collaborator for a verdict. Any failure
// here (timeout, transport, unparsable reply) degrades to undecided so
// the pipeline falls through to the keyword layer.
func (s *llmStrategy) Attempt(ctx context.Context, msg bus.InboundMessage) (Decision, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.completer.Complete(ctx, s.prompt(), msg.Content)
	if err != nil {
		s.log.Warn("llm classification degraded", zap.Error(err))
		return Decision{}, false
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		s.log.Warn("llm classification degraded", zap.Error(err))
		return Decision{}, false
	}

	decision := Decision{Reason: "llm_classifier", Source: SourceLLMClassifier}
	switch verdict.Route {
	case RouteHuman:
		decision.Route = RouteHuman
		if verdict.TeamName != "" {
			if team, err := s.dir.Resolve(verdict.TeamName); err == nil {
				decision.Team = &team
			} else {
				// Unknown team name degrades to the bare HUMAN route.
				s.log.Debug("llm team not recognized", zap.String("team", verdict.TeamName))
			}
		}
	case RouteDirect:
		decision.Route = RouteDirect
	case RouteMec:
		decision.Route = RouteMec
	}
	return decision, true
}
