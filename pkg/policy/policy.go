// Package policy holds the confidence-escalation decision and the
// managed conversation labels.
package policy

import (
	"sort"

	"github.com/gestao-presente/orquestra/pkg/specialist"
)

// Labels names the managed outcome labels. The engine owns exactly
// these labels on a conversation; everything else is user-applied and
// preserved untouched.
type Labels struct {
	Human        string
	Orchestrator string
	Mec          string
	Failure      string
}

func DefaultLabels() Labels {
	return Labels{
		Human:        "humano",
		Orchestrator: "ia_orquestrador",
		Mec:          "ia_mec",
		Failure:      "ia_falha",
	}
}

// Managed returns the full managed set.
func (l Labels) Managed() []string {
	return []string{l.Human, l.Orchestrator, l.Mec, l.Failure}
}

// Compose rebuilds a conversation's label list: every managed label is
// dropped, the target is added, non-managed labels survive. Sorted for
// deterministic platform calls.
func (l Labels) Compose(current []string, target string) []string {
	managed := make(map[string]bool, 4)
	for _, label := range l.Managed() {
		managed[label] = true
	}

	seen := make(map[string]bool, len(current)+1)
	var out []string
	for _, label := range current {
		if managed[label] || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	if target != "" && !seen[target] {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// Outcome is the escalation decision for one specialist answer.
type Outcome struct {
	Deliver bool
	// Label is the managed label for the outcome: Mec on deliver,
	// Failure on escalation.
	Label string
	// AssignHuman requests assignment to the default human team.
	AssignHuman bool
}

// Decide applies the confidence threshold. The boundary is inclusive:
// confidence equal to the threshold delivers.
func Decide(answer specialist.Answer, threshold float64, labels Labels) Outcome {
	answer = answer.Clamp()
	if answer.Confidence >= threshold {
		return Outcome{Deliver: true, Label: labels.Mec}
	}
	return Outcome{Label: labels.Failure, AssignHuman: true}
}
