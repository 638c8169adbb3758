package router

import (
	"context"
	"strings"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/textutil"
)

// Domain keywords, folded. Any hit routes to the specialist.
var mecKeywords = []string{
	"mec", "regimento", "resolucao", "tcc", "acc", "ufpa", "fasi",
	"documento", "norma", "regra", "artigo", "credito", "carga horaria",
}

// smalltalkWords covers greetings and thanks. A message is smalltalk
// when every word belongs to this set.
var smalltalkWords = map[string]bool{
	"oi": true, "ola": true, "bom": true, "boa": true, "dia": true,
	"tarde": true, "noite": true, "tudo": true, "bem": true, "certo": true,
	"obrigado": true, "obrigada": true, "valeu": true, "ok": true,
	"tchau": true, "ate": true, "mais": true, "como": true, "vai": true,
	"agradeco": true, "pela": true, "ajuda": true,
}

const smalltalkMaxLen = 40

type keywordStrategy struct{}

func newKeywordStrategy() *keywordStrategy { return &keywordStrategy{} }

func (s *keywordStrategy) Name() string { return "keyword_fallback" }

// Attempt always decides: smalltalk goes direct, domain keywords go to
// the specialist, and so does everything else — a support bot assumes
// domain questions absent other signal.
func (s *keywordStrategy) Attempt(_ context.Context, msg bus.InboundMessage) (Decision, bool) {
	folded := textutil.Fold(msg.Content)

	if isSmalltalk(folded) {
		return Decision{Route: RouteDirect, Reason: "smalltalk", Source: SourceKeywordFallback}, true
	}

	for _, keyword := range mecKeywords {
		if strings.Contains(folded, keyword) {
			return Decision{Route: RouteMec, Reason: "mec_domain_keyword", Source: SourceKeywordFallback}, true
		}
	}

	return Decision{Route: RouteMec, Reason: "default_mec_route", Source: SourceDefault}, true
}

func isSmalltalk(folded string) bool {
	if len(folded) > smalltalkMaxLen {
		return false
	}
	words := strings.FieldsFunc(folded, isWordSeparator)
	if len(words) == 0 {
		return false
	}
	for _, word := range words {
		if !smalltalkWords[word] {
			return false
		}
	}
	return true
}
