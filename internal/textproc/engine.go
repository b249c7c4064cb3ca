package textproc

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// rule is one compiled substitution. Matching is case-insensitive on whole
// words so "pr" does not rewrite the middle of "print".
type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Engine rewrites transcripts with substitutions loaded from a rules file.
// Each non-comment line has the form `spoken => written`. Rules are applied
// repeatedly until the text stops changing or the iteration limit is hit,
// so chained substitutions resolve.
type Engine struct {
	rules     []rule
	loopLimit int
}

// NewEngine loads substitutions from path. A missing file yields an engine
// that passes text through unchanged; dictation works before the user has
// written any rules.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	if loopLimit <= 0 {
		loopLimit = 10
	}
	e := &Engine{loopLimit: loopLimit}

	if strings.TrimSpace(path) == "" {
		return e, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return e, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	rules, err := parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	e.rules = rules
	return e, nil
}

// Apply runs the substitution passes over text.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, r := range e.rules {
			next := r.re.ReplaceAllString(result, r.replacement)
			if next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}

// Len reports the number of loaded rules.
func (e *Engine) Len() int { return len(e.rules) }

func parse(contents string) ([]rule, error) {
	var rules []rule
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=>", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected `spoken => written`", index+1)
		}
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if from == "" {
			return nil, fmt.Errorf("line %d: substitution source cannot be empty", index+1)
		}

		re, err := compilePattern(from)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule{re: re, replacement: to})
	}
	return rules, nil
}

func compilePattern(from string) (*regexp.Regexp, error) {
	pattern := regexp.QuoteMeta(from)
	// Word boundaries only make sense when the phrase starts/ends with a
	// word character; "..." stays a plain literal match.
	if startsWithWordChar(from) {
		pattern = `\b` + pattern
	}
	if endsWithWordChar(from) {
		pattern += `\b`
	}
	return regexp.Compile("(?i)" + pattern)
}

func startsWithWordChar(s string) bool {
	return len(s) > 0 && isWordChar(s[0])
}

func endsWithWordChar(s string) bool {
	return len(s) > 0 && isWordChar(s[len(s)-1])
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}
