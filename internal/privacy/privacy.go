// Package privacy redacts credentials from URLs before they reach logs,
// errors or published messages.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "REDACTED"

// urlPattern finds URLs of the schemes the services use in free text.
var urlPattern = regexp.MustCompile(`\b(?:https?|tcp|ssl|tls|mqtts?|wss?|mysql)://[^\s"'<>]+`)

// sensitiveParams are query parameters whose values are always redacted.
var sensitiveParams = []string{"token", "key", "apikey", "api_key", "password", "secret", "auth", "signature"}

// RedactURL returns rawURL with the password of its user info and the
// values of sensitive query parameters replaced. Host, port and path are
// kept for debugging. Strings that do not parse as URLs are returned
// unchanged when they hold no '@', otherwise the part before '@' is dropped.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if i := strings.LastIndex(rawURL, "@"); i >= 0 {
			return redacted + rawURL[i:]
		}
		return rawURL
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		changed := false
		for name := range q {
			if isSensitive(name) {
				q.Set(name, redacted)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	return u.String()
}

// ScrubMessage redacts every URL found in message.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, RedactURL)
}

func isSensitive(param string) bool {
	param = strings.ToLower(param)
	for _, s := range sensitiveParams {
		if param == s || strings.HasSuffix(param, "_"+s) {
			return true
		}
	}
	return false
}
