package formula

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cellflow/cellflow/internal/value"
)

// SyntheticVarPrefix names the variables the pre-processor generates for
// URL literals embedded in raw formula text.
const SyntheticVarPrefix = "url_var_"

// urlPattern matches URL literals inside formula text. The character class
// stops at whitespace, commas and parentheses so that a URL used as a bare
// external_ref argument terminates at the closing parenthesis.
var urlPattern = regexp.MustCompile(`https?://[^\s,()]+`)

// Preprocessed is the output of Preprocess: the (possibly rewritten)
// formula text and the synthetic variable bindings it introduced. Both are
// persisted on the cell so recalculation reconstructs the same evaluation
// environment without re-scanning raw text.
type Preprocessed struct {
	Text      string
	IsFormula bool
	Vars      map[string]value.Value
}

// Preprocess rewrites URL literals embedded in raw formula text into
// synthetic variable references. Non-formula text (no leading "=") is
// returned unchanged apart from trimming. Each distinct URL gets one
// synthetic variable, in first-occurrence order; repeated URLs collapse to
// the same variable.
func Preprocess(raw string) Preprocessed {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "=") {
		return Preprocessed{Text: text}
	}

	out := Preprocessed{Text: text, IsFormula: true}
	urls := urlPattern.FindAllString(text, -1)
	seen := make(map[string]bool)
	idx := 0
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		name := fmt.Sprintf("%s%d", SyntheticVarPrefix, idx)
		idx++
		out.Text = strings.ReplaceAll(out.Text, u, name)
		if out.Vars == nil {
			out.Vars = make(map[string]value.Value)
		}
		out.Vars[name] = value.Parse(u)
	}
	return out
}
