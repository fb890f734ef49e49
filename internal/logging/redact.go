package logging

import "regexp"

type redactRule struct {
	pattern *regexp.Regexp
	repl    string
}

// Download URLs handed out by the backends are bearer credentials in their
// own right: presigned S3 links carry the signature in the query and the
// gateway accepts a session token as a parameter.
var redactRules = []redactRule{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)(access_token|refresh_token|id_token|session_token|client_secret)(["']?\s*[:=]\s*["']?)[^\s"'&,]+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`(?i)(X-Amz-Signature|X-Amz-Credential|X-Amz-Security-Token|Signature|token|dsid)=[^\s&"']+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(authorization|cookie|x-apple-session-token)(["']?\s*[:=]\s*["']?)[^\s"']+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`), "[REDACTED-KEY-ID]"},
}

// Redact masks credentials in s
func Redact(s string) string {
	for _, r := range redactRules {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return s
}
