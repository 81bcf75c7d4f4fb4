package crawler

import (
	"net/url"
	"regexp"
)

// domainPlusTLDFormat is deliberately the naive `[^.]+\.[^.]+$` suffix, the
// same regex the original crawler used to group politeness delays by
// domain. It is wrong for public suffixes such as ".co.uk" (it would treat
// "co.uk" as the registrable domain of "a.b.example.co.uk") but changing it
// risks altering politeness grouping behavior other parts of the system
// depend on, so it is kept as the documented contract rather than "fixed"
// with a public-suffix list (see SPEC_FULL.md §9, open question).
var domainPlusTLDFormat = regexp.MustCompile(`[^.]+\.[^.]+$`)

// RegistrableDomain extracts the registrable domain of rawURL's host, used
// as the grouping key for per-domain crawl delays. Returns the empty string
// if rawURL does not parse or has no host.
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return registrableDomainFromHost(u.Hostname())
}

func registrableDomainFromHost(host string) string {
	return domainPlusTLDFormat.FindString(host)
}
