package router

import (
	"context"
	"regexp"
	"strings"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/policy"
	"github.com/gestao-presente/orquestra/pkg/textutil"
)

// humanPatterns match unambiguous handoff phrasing on normalized text.
var humanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhumanos?\b`),
	regexp.MustCompile(`\batendentes?\b`),
	regexp.MustCompile(`falar com (uma )?pessoa`),
	regexp.MustCompile(`suporte humano`),
	regexp.MustCompile(`quero falar com .*humano`),
	regexp.MustCompile(`encaminhar para .*humano`),
}

// aiPatterns match an explicit request to go back to the bot.
var aiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bia\b`),
	regexp.MustCompile(`inteligencia artificial`),
	regexp.MustCompile(`voltar para( a)? ia`),
	regexp.MustCompile(`pode ser pela ia`),
	regexp.MustCompile(`quero ajuda da ia`),
}

// Action and target vocabularies for the combined check: a handoff
// request needs one word from each. Folded forms, Portuguese plus the
// English/Spanish variants that show up in practice.
var humanActionWords = []string{
	"falar", "encaminhar", "encaminhe", "encaminha", "passar", "transferir", "atender",
	"talk", "speak", "transfer", "escalate", "hablar", "escalar",
}

var humanTargetWords = []string{
	"humano", "pessoa", "atendente", "especialista", "equipe", "time", "suporte", "financeir",
	"human", "person", "agent", "team", "support", "persona", "agente", "equipo", "soporte",
}

type explicitStrategy struct {
	dir    *directory.Directory
	labels policy.Labels
}

func newExplicitStrategy(dir *directory.Directory, labels policy.Labels) *explicitStrategy {
	return &explicitStrategy{dir: dir, labels: labels}
}

func (s *explicitStrategy) Name() string { return "explicit_pattern" }

func (s *explicitStrategy) Attempt(_ context.Context, msg bus.InboundMessage) (Decision, bool) {
	text := textutil.Normalize(msg.Content)
	folded := textutil.Fold(msg.Content)
	requestedAI := matchesAny(aiPatterns, folded)

	if s.requestedHuman(text, folded) {
		decision := Decision{
			Route:  RouteHuman,
			Reason: "explicit_human_request",
			Source: SourceExplicitPattern,
		}
		if team, err := s.dir.Resolve(msg.Content); err == nil {
			decision.Team = &team
		}
		return decision, true
	}

	// A conversation already escalated for real (human + failure labels
	// both present) stays human unless the user explicitly asks for the
	// bot again.
	if hasLabel(msg.Labels, s.labels.Human) && hasLabel(msg.Labels, s.labels.Failure) && !requestedAI {
		return Decision{
			Route:  RouteHuman,
			Reason: "conversation_already_human",
			Source: SourceDefault,
		}, true
	}

	if requestedAI {
		return Decision{
			Route:  RouteMec,
			Reason: "explicit_ai_request",
			Source: SourceExplicitPattern,
		}, true
	}

	return Decision{}, false
}

func (s *explicitStrategy) requestedHuman(text, folded string) bool {
	if matchesAny(humanPatterns, text) || matchesAny(humanPatterns, folded) {
		return true
	}

	hasAction := containsWordFrom(folded, humanActionWords)
	hasTarget := containsWordFrom(folded, humanTargetWords)
	if hasAction && !hasTarget {
		// Team names and aliases count as targets too.
		if _, err := s.dir.Resolve(folded); err == nil {
			hasTarget = true
		}
	}
	return hasAction && hasTarget
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// containsWordFrom reports whether any word of the text matches one of
// the vocabulary entries. Entries of six or more characters match as
// prefixes, covering inflected forms ("financeir" -> "financeiras").
func containsWordFrom(folded string, vocabulary []string) bool {
	for _, word := range strings.FieldsFunc(folded, isWordSeparator) {
		for _, entry := range vocabulary {
			if word == entry || (len(entry) >= 6 && strings.HasPrefix(word, entry)) {
				return true
			}
		}
	}
	return false
}

func isWordSeparator(r rune) bool {
	return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!' || r == ';' || r == ':'
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
