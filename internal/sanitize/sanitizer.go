package sanitize

import (
	"fmt"
	"sort"
	"strings"
)

// placeholderPrefix is chosen to be a valid identifier and string content in
// every supported language so a repair keeps it intact.
const placeholderPrefix = "CLIPFIX_SECRET_"

// Sanitizer rewrites secrets found by its patterns.
type Sanitizer struct {
	patterns []Pattern
}

// New returns a Sanitizer with the built-in patterns.
func New() *Sanitizer {
	return &Sanitizer{patterns: DefaultPatterns()}
}

// NewWithPatterns returns a Sanitizer with custom patterns.
func NewWithPatterns(patterns []Pattern) *Sanitizer {
	return &Sanitizer{patterns: patterns}
}

// Sanitize replaces every secret with its pattern's label. The result is for
// prompts whose reply is not code, like language detection.
func (s *Sanitizer) Sanitize(input string) string {
	return s.rewrite(input, func(_ string, p Pattern) string { return p.Label })
}

// Redaction maps placeholders back to the secrets they replaced.
type Redaction struct {
	secrets map[string]string
}

// Len is the number of distinct secrets redacted.
func (r *Redaction) Len() int {
	if r == nil {
		return 0
	}
	return len(r.secrets)
}

// Restore puts the original secrets back in text.
func (r *Redaction) Restore(text string) string {
	if r.Len() == 0 {
		return text
	}
	// Longest placeholder first so _10 is not clobbered by _1.
	keys := make([]string, 0, len(r.secrets))
	for k := range r.secrets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, r.secrets[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Redact swaps each distinct secret for a numbered placeholder. The same
// secret always gets the same placeholder within one call.
func (s *Sanitizer) Redact(input string) (string, *Redaction) {
	r := &Redaction{secrets: make(map[string]string)}
	bySecret := make(map[string]string)
	out := s.rewrite(input, func(secret string, _ Pattern) string {
		if ph, ok := bySecret[secret]; ok {
			return ph
		}
		ph := fmt.Sprintf("%s%d", placeholderPrefix, len(bySecret)+1)
		bySecret[secret] = ph
		r.secrets[ph] = secret
		return ph
	})
	return out, r
}

func (s *Sanitizer) rewrite(input string, repl func(secret string, p Pattern) string) string {
	if input == "" {
		return input
	}
	result := input
	for _, p := range s.patterns {
		matches := p.Regex.FindAllStringSubmatchIndex(result, -1)
		if len(matches) == 0 {
			continue
		}
		var b strings.Builder
		last := 0
		for _, m := range matches {
			start, end := m[2*p.Group], m[2*p.Group+1]
			if start < 0 {
				continue
			}
			secret := result[start:end]
			if strings.HasPrefix(secret, placeholderPrefix) || strings.HasPrefix(secret, "[") {
				continue
			}
			b.WriteString(result[last:start])
			b.WriteString(repl(secret, p))
			last = end
		}
		b.WriteString(result[last:])
		result = b.String()
	}
	return result
}

// Default is the package-level sanitizer.
var Default = New()

// Sanitize uses the default sanitizer.
func Sanitize(input string) string {
	return Default.Sanitize(input)
}
