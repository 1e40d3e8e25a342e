package council

import (
	"strconv"
	"strings"

	apperrors "council-trader/internal/errors"
	"council-trader/internal/models"
)

// parseFields reads a KEY: value response into a map. Keys are
// upper-cased; the value of the last key runs to the end of the
// response, so multi-line REASONING and SYNTHESIS fields survive.
func parseFields(s string) map[string]string {
	fields := make(map[string]string)
	var current string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if key, value, ok := splitField(trimmed); ok {
			fields[key] = value
			current = key
			continue
		}
		if current != "" && trimmed != "" {
			fields[current] = strings.TrimSpace(fields[current] + "\n" + trimmed)
		}
	}
	return fields
}

var knownKeys = map[string]bool{
	"RECOMMENDATION": true,
	"CONFIDENCE":     true,
	"KEY_NUMBERS":    true,
	"REASONING":      true,
	"CONVERGED":      true,
	"SYNTHESIS":      true,
	"ACTION":         true,
	"ENTRY":          true,
	"TARGET":         true,
	"STOP":           true,
	"SIZE_PERCENT":   true,
}

func splitField(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToUpper(strings.TrimSpace(line[:idx]))
	if !knownKeys[key] {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0, false
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Verdict is a moderator's convergence call.
type Verdict struct {
	Converged bool
	Synthesis string
}

// ParseVerdict reads a moderator response. A missing or malformed
// CONVERGED field is treated as not converged so the debate continues
// rather than terminating on a formatting slip.
func ParseVerdict(response string) Verdict {
	fields := parseFields(response)
	v := Verdict{Synthesis: fields["SYNTHESIS"]}
	if strings.EqualFold(strings.TrimSpace(fields["CONVERGED"]), "YES") {
		v.Converged = true
	}
	if v.Converged && v.Synthesis == "" {
		// A bare YES with no synthesis is not usable.
		v.Converged = false
	}
	return v
}

// ParseSynthesis reads a forced-synthesis response, falling back to the
// whole response body when the SYNTHESIS field is absent.
func ParseSynthesis(response string) string {
	if s := parseFields(response)["SYNTHESIS"]; s != "" {
		return s
	}
	return strings.TrimSpace(response)
}

// ParseProposal reads a trader response into a Proposal. The action is
// mandatory; price fields and sizing degrade to zero when absent.
func ParseProposal(response string) (*models.Proposal, error) {
	fields := parseFields(response)
	action, ok := models.ParseAction(fields["ACTION"])
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrDecisionUnavailable,
			"trader response has no parsable ACTION")
	}
	p := &models.Proposal{Action: action, Rationale: fields["REASONING"]}
	if f, ok := parseFloat(fields["ENTRY"]); ok {
		p.Entry = f
	}
	if f, ok := parseFloat(fields["TARGET"]); ok {
		p.Target = f
	}
	if f, ok := parseFloat(fields["STOP"]); ok {
		p.Stop = f
	}
	if f, ok := parseFloat(fields["SIZE_PERCENT"]); ok && f >= 0 && f <= 100 {
		p.SizePercent = f
	}
	if f, ok := parseFloat(fields["CONFIDENCE"]); ok && f >= 0 && f <= 100 {
		p.Confidence = f
	}
	return p, nil
}

// JudgeVerdict is the risk judge's final call over the proposal.
type JudgeVerdict struct {
	Verdict
	Action     models.Action
	HasAction  bool
	Confidence float64
	Entry      float64
	Target     float64
	Stop       float64
}

// ParseJudgeVerdict reads a risk judge response. Fields the judge left
// out fall back to the trader's proposal when the decision is built.
func ParseJudgeVerdict(response string) JudgeVerdict {
	fields := parseFields(response)
	jv := JudgeVerdict{Verdict: ParseVerdict(response)}
	if action, ok := models.ParseAction(fields["ACTION"]); ok {
		jv.Action = action
		jv.HasAction = true
	}
	if f, ok := parseFloat(fields["CONFIDENCE"]); ok && f >= 0 && f <= 100 {
		jv.Confidence = f
	}
	if f, ok := parseFloat(fields["ENTRY"]); ok {
		jv.Entry = f
	}
	if f, ok := parseFloat(fields["TARGET"]); ok {
		jv.Target = f
	}
	if f, ok := parseFloat(fields["STOP"]); ok {
		jv.Stop = f
	}
	return jv
}
