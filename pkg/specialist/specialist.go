// Package specialist is the client side of the RAG domain specialist:
// it asks the configured completion provider and attaches a confidence
// score to the answer.
package specialist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gestao-presente/orquestra/pkg/providers"
	"github.com/gestao-presente/orquestra/pkg/textutil"
)

// Answer is a specialist reply with its confidence in [0, 1].
type Answer struct {
	Text       string
	Confidence float64
}

// Clamp forces the confidence into [0, 1]. Collaborator scores outside
// the range are clamped, not trusted.
func (a Answer) Clamp() Answer {
	switch {
	case a.Confidence < 0:
		a.Confidence = 0
	case a.Confidence > 1:
		a.Confidence = 1
	}
	return a
}

const systemPrompt = "Você é um assistente inteligente especializado nos documentos internos da organização.\n" +
	"Responda de forma clara, objetiva e precisa utilizando o conhecimento disponível nos documentos.\n" +
	"Caso a informação não esteja disponível nos documentos, informe ao usuário de forma educada.\n" +
	"Responda sempre no mesmo idioma da pergunta."

// noAnswerMarkers flag replies where the model admitted it found
// nothing in the documents. Compared against folded text.
var noAnswerMarkers = []string{
	"nao encontrei",
	"nao esta disponivel",
	"nao tenho essa informacao",
	"nao consta nos documentos",
}

type Client struct {
	completer providers.Completer
	timeout   time.Duration
	log       *zap.Logger
}

func NewClient(completer providers.Completer, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{completer: completer, timeout: timeout, log: log.Named("specialist")}
}

// Answer asks the specialist one question, bounded by the configured
// timeout. The confidence heuristic mirrors the upstream scorer:
// substantial answers score 0.8, thin ones 0.5, and answers that admit
// not finding anything in the documents 0.4.
func (c *Client) Answer(ctx context.Context, query string) (Answer, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := c.completer.Complete(ctx, systemPrompt, query)
	if err != nil {
		return Answer{}, fmt.Errorf("specialist answer: %w", err)
	}

	answer := Answer{Text: text, Confidence: Score(text)}.Clamp()
	c.log.Debug("specialist answered",
		zap.Float64("confidence", answer.Confidence),
		zap.Duration("elapsed", time.Since(started)),
	)
	return answer, nil
}

// Score derives a confidence for an answer text.
func Score(text string) float64 {
	folded := textutil.Fold(text)
	for _, marker := range noAnswerMarkers {
		if strings.Contains(folded, marker) {
			return 0.4
		}
	}
	if len(strings.TrimSpace(text)) > 20 {
		return 0.8
	}
	return 0.5
}
