package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

const maxURLLength = 2048

// domainFormat implements the domain grammar of SPEC_FULL.md §6:
//
//	authority = [userinfo "@"] host [":" port]
//	host      = 1*(label ".") tld | "localhost"
//	label     = ALPHA/DIGIT *(ALPHA/DIGIT/"-") ALPHA/DIGIT   ; <= 63
//	tld       = 1*63(ALPHA/DIGIT)
//	port      = 1*5DIGIT
var domainFormat = regexp.MustCompile(
	`(?i)^(?:[\w]{1,255}:.{1,255}@|)` +
		`(?:(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+` +
		`(?:[a-z0-9]{1,63}))` +
		`|localhost)` +
		`(:\d{1,5})?$`,
)

// schemeFormat matches the schemes the crawler considers valid to reference
// (not necessarily to fetch: only http/https are ever actually dereferenced).
var schemeFormat = regexp.MustCompile(`(?i)^(http|hxxp|ftp|fxp)s?$`)

// IsValidURL reports whether rawURL passes the validity test: non-empty,
// <=2048 chars, a recognised scheme, and a host matching the domain grammar
// (or the literal "localhost").
func IsValidURL(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}
	if len(rawURL) > maxURLLength {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if parsed.Scheme == "" || !schemeFormat.MatchString(parsed.Scheme) {
		return false
	}

	if parsed.Host == "" {
		return false
	}

	return domainFormat.MatchString(parsed.Host)
}

// isFetchableScheme reports whether scheme is http or https, the only schemes
// the retriever will ever dereference, even though other schemes may pass
// IsValidURL for the sake of extraction bookkeeping.
func isFetchableScheme(scheme string) bool {
	lower := strings.ToLower(scheme)
	return lower == "http" || lower == "https"
}
