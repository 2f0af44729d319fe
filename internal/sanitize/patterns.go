// Package sanitize keeps credentials embedded in pasted code away from
// generative backends.
package sanitize

import "regexp"

// Pattern finds one kind of secret. Group selects the submatch that holds
// the secret itself; 0 means the whole match.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	Group int
	Label string
}

// Quoted string literals assigned to credential-looking names, in any of the
// languages clipfix handles: password = "...", "apiKey": '...', token := "...".
var quotedAssignment = regexp.MustCompile(
	`(?i)\b[A-Za-z0-9_]*(?:password|passwd|secret|token|api_?key|access_?key|private_?key)[A-Za-z0-9_]*["']?\s*(?::=|=|:)\s*["']([^"'\s]{6,})["']`)

var secretPatterns = []Pattern{
	{Name: "PEM block", Regex: regexp.MustCompile(`-----BEGIN [A-Z ]+-----[\s\S]+?-----END [A-Z ]+-----`), Label: "[PEM_BLOCK_REDACTED]"},
	{Name: "AWS access key", Regex: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), Label: "[AWS_ACCESS_KEY_REDACTED]"},
	{Name: "Anthropic key", Regex: regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{20,}`), Label: "[API_KEY_REDACTED]"},
	{Name: "OpenAI key", Regex: regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9_-]{20,}`), Label: "[API_KEY_REDACTED]"},
	{Name: "Google API key", Regex: regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`), Label: "[API_KEY_REDACTED]"},
	{Name: "GitHub token", Regex: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36}\b`), Label: "[GITHUB_TOKEN_REDACTED]"},
	{Name: "Slack token", Regex: regexp.MustCompile(`\bxox[baprs]-[0-9A-Za-z-]{10,}`), Label: "[SLACK_TOKEN_REDACTED]"},
	{Name: "JWT", Regex: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), Label: "[JWT_REDACTED]"},
	{Name: "URL credentials", Regex: regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^\s:/@"']+:([^\s@/"']+)@`), Group: 1, Label: "[PASSWORD_REDACTED]"},
	{Name: "Bearer token", Regex: regexp.MustCompile(`(?i)\bbearer\s+([A-Za-z0-9._~+/-]{20,}=*)`), Group: 1, Label: "[TOKEN_REDACTED]"},
	{Name: "Shell credential", Regex: regexp.MustCompile(`\b[A-Z0-9_]*(?:PASSWORD|TOKEN|SECRET|API_KEY)[A-Z0-9_]*=([^\s"'$]{6,})`), Group: 1, Label: "[REDACTED]"},
	{Name: "Credential literal", Regex: quotedAssignment, Group: 1, Label: "[REDACTED]"},
}

// DefaultPatterns returns a copy of the built-in patterns.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(secretPatterns))
	copy(out, secretPatterns)
	return out
}
