package agent

import (
	"regexp"
	"strings"
)

// step is one parsed model response: either a tool dispatch or a
// final answer, never both.
type step struct {
	action string
	input  string
	final  string
}

var (
	actionRe = regexp.MustCompile(`(?m)^\s*Action:\s*(.+?)\s*$`)
	inputRe  = regexp.MustCompile(`(?m)^\s*Action Input:\s*(.*)$`)
	finalRe  = regexp.MustCompile(`(?s)Final Answer:\s*(.+)`)
)

// parseStep extracts the next step from the model output. Anything the
// model wrote from a fabricated "Observation:" onward is discarded
// before parsing; only the runtime supplies observations. The second
// return is false when the output fits neither shape, or claims both
// at once.
func parseStep(text string) (step, bool) {
	if i := strings.Index(text, "Observation:"); i >= 0 {
		text = text[:i]
	}

	action := actionRe.FindStringSubmatch(text)
	final := finalRe.FindStringSubmatch(text)

	switch {
	case action != nil && final != nil:
		return step{}, false
	case action != nil:
		input := ""
		if m := inputRe.FindStringSubmatch(text); m != nil {
			input = strings.TrimSpace(m[1])
		}
		return step{action: strings.TrimSpace(action[1]), input: input}, true
	case final != nil:
		return step{final: strings.TrimSpace(final[1])}, true
	}
	return step{}, false
}
