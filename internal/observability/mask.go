package observability

import "regexp"

var (
	reDSNPassword = regexp.MustCompile(`(://[^:/@\s]+):([^@\s]+)@`)
	reKeyValue    = regexp.MustCompile(`(?i)((?:password|api_key|apikey|token)=)([^\s&;]+)`)
	reBearer      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._-]+)`)
	reOpenAIKey   = regexp.MustCompile(`sk-[A-Za-z0-9_-]{6,}`)
)

// Mask hides credentials embedded in DSNs, URLs and key material before they reach a log line.
func Mask(s string) string {
	out := reDSNPassword.ReplaceAllString(s, "$1:***@")
	out = reKeyValue.ReplaceAllString(out, "$1***")
	out = reBearer.ReplaceAllString(out, "$1***")
	out = reOpenAIKey.ReplaceAllString(out, "sk-***")
	return out
}
