// Package router decides, for one inbound message, which handling path
// applies: a direct reply from the orchestrator, the domain specialist,
// or escalation to a human team. Classification is a strictly ordered
// pipeline of strategies; the first decisive layer wins.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/policy"
	"github.com/gestao-presente/orquestra/pkg/providers"
)

type Route string

const (
	RouteDirect Route = "direct"
	RouteMec    Route = "mec"
	RouteHuman  Route = "human"
)

type Source string

const (
	SourceExplicitPattern Source = "explicit_pattern"
	SourceLLMClassifier   Source = "llm_classifier"
	SourceKeywordFallback Source = "keyword_fallback"
	SourceDefault         Source = "default"
)

// Decision is the routing verdict for one message. Team is set only
// for HUMAN routes where a specific team was identified; nil means the
// default human team.
type Decision struct {
	Route  Route
	Team   *directory.Team
	Reason string
	Source Source
}

// Strategy is one classification layer. Attempt returns false when the
// layer is undecided and the pipeline should fall through.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, msg bus.InboundMessage) (Decision, bool)
}

type Config struct {
	// UseLLM enables the LLM classification layer.
	UseLLM bool
	// DeferBareHumanToLLM lets an LLM verdict override an explicit
	// human match that named no team. An explicit match that resolved
	// a team is always final.
	DeferBareHumanToLLM bool
	// LLMTimeout bounds the single classifier round-trip.
	LLMTimeout time.Duration
}

type Classifier struct {
	strategies []Strategy
	cfg        Config
	hasLLM     bool
	log        *zap.Logger
}

// New assembles the pipeline: explicit patterns, then the optional LLM
// layer, then the keyword fallback (which always decides).
func New(dir *directory.Directory, labels policy.Labels, completer providers.Completer, cfg Config, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("router")

	strategies := []Strategy{newExplicitStrategy(dir, labels)}
	hasLLM := cfg.UseLLM && completer != nil
	if hasLLM {
		strategies = append(strategies, newLLMStrategy(dir, completer, cfg.LLMTimeout, log))
	}
	strategies = append(strategies, newKeywordStrategy())

	return &Classifier{strategies: strategies, cfg: cfg, hasLLM: hasLLM, log: log}
}

// Classify runs the layers in order and returns the first decisive
// verdict. With DeferBareHumanToLLM set, an explicit human match that
// named no team is held back: a decisive LLM verdict replaces it, any
// other outcome restores it.
func (c *Classifier) Classify(ctx context.Context, msg bus.InboundMessage) Decision {
	var held *Decision
	for _, strategy := range c.strategies {
		decision, ok := strategy.Attempt(ctx, msg)
		if !ok {
			continue
		}
		if held != nil {
			if decision.Source == SourceLLMClassifier {
				return decision
			}
			return *held
		}
		if c.cfg.DeferBareHumanToLLM &&
			decision.Source == SourceExplicitPattern &&
			decision.Route == RouteHuman &&
			decision.Team == nil &&
			c.hasLLM {
			held = &decision
			continue
		}
		return decision
	}
	if held != nil {
		return *held
	}
	// The keyword fallback always decides; this is unreachable.
	return Decision{Route: RouteMec, Reason: "default_mec_route", Source: SourceDefault}
}
