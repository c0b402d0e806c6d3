package orchestrate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/storyboard/internal/plan"
)

// Intent classifies what the user wants from this turn.
type Intent string

const (
	// IntentNew starts a fresh plan from scratch
	IntentNew Intent = "new"
	// IntentRefine patches the existing plan in place
	IntentRefine Intent = "refine"
	// IntentRegenerate redoes existing work with a changed approach
	IntentRegenerate Intent = "regenerate"
)

// Keyword vocabularies, matched as substrings. Regenerate outranks refine so
// やり直し never degrades to a refine via its 直し suffix.
var (
	regenerateKeywords = []string{
		"やり直し", "やり直す", "再生成", "作り直す", "作り直し", "regenerate", "redo", "start over",
	}
	refineKeywords = []string{
		"修正", "変更", "調整", "直して", "直す", "fix", "update", "change", "adjust", "refine", "tweak",
	}
)

// DetectIntent classifies free text. Regenerate keywords win over refine
// keywords; anything else is a new request.
func DetectIntent(text string) Intent {
	lowered := strings.ToLower(text)
	for _, kw := range regenerateKeywords {
		if strings.Contains(lowered, kw) {
			return IntentRegenerate
		}
	}
	for _, kw := range refineKeywords {
		if strings.Contains(lowered, kw) {
			return IntentRefine
		}
	}
	return IntentNew
}

// Unit reference patterns in user text, Japanese counters and English words.
var scopePatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`([0-9]+)\s*枚目`), "slide"},
	{regexp.MustCompile(`(?i)slide\s*([0-9]+)`), "slide"},
	{regexp.MustCompile(`([0-9]+)\s*ページ目?`), "page"},
	{regexp.MustCompile(`ページ\s*([0-9]+)`), "page"},
	{regexp.MustCompile(`(?i)page\s*([0-9]+)`), "page"},
	{regexp.MustCompile(`([0-9]+)\s*コマ目?`), "panel"},
	{regexp.MustCompile(`(?i)panel\s*([0-9]+)`), "panel"},
}

// ExtractScope pulls unit references like "3枚目" or "slide 3" out of free
// text. Returns nil when the text addresses no particular unit.
func ExtractScope(text string) *plan.TargetScope {
	scope := &plan.TargetScope{}
	for _, p := range scopePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= 0 {
				continue
			}
			switch p.kind {
			case "slide":
				scope.SlideNumbers = append(scope.SlideNumbers, n)
			case "page":
				scope.PageNumbers = append(scope.PageNumbers, n)
			case "panel":
				scope.PanelNumbers = append(scope.PanelNumbers, n)
			}
		}
	}

	if scope.IsEmpty() {
		return nil
	}
	// canonicalize: dedup, sort, derive asset_unit_ids
	if _, err := plan.NormalizeTargetScope(scope, nil); err != nil {
		return nil
	}
	return scope
}
