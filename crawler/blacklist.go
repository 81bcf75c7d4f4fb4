package crawler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Blacklist holds the three exclusion lists a URL is checked against:
// bare main domains (the label before the TLD), main-domain+TLD pairs, and
// path extensions. A URL matches if any of the three matches.
type Blacklist struct {
	MainDomains        []string `json:"main_domains"`
	MainDomainsPlusTLD []string `json:"main_domains+tlds"`
	Extensions         []string `json:"extensions"`
}

// LoadBlacklist reads and parses a blacklist JSON file in the shape:
//
//	{ "main_domains": [...], "main_domains+tlds": [...], "extensions": [...] }
func LoadBlacklist(path string) (*Blacklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading blacklist from %s: %w", path, err)
	}
	var b Blacklist
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing blacklist from %s: %w", path, err)
	}
	return &b, nil
}

// Contains reports whether rawURL matches any of the blacklist's three
// exclusion lists.
func (b *Blacklist) Contains(rawURL string) bool {
	if b == nil {
		return false
	}

	mainDomain := extractMainDomain(rawURL)
	for _, d := range b.MainDomains {
		if mainDomain != "" && mainDomain == d {
			return true
		}
	}

	domainPlusTLD := RegistrableDomain(rawURL)
	for _, d := range b.MainDomainsPlusTLD {
		if domainPlusTLD != "" && domainPlusTLD == d {
			return true
		}
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		for _, ext := range b.Extensions {
			if strings.HasSuffix(parsed.Path, ext) {
				return true
			}
		}
	}

	return false
}

// extractMainDomain returns the label immediately before the TLD, e.g.
// "www.google.de" -> "google".
func extractMainDomain(rawURL string) string {
	domainPlusTLD := RegistrableDomain(rawURL)
	if domainPlusTLD == "" {
		return ""
	}
	idx := strings.Index(domainPlusTLD, ".")
	if idx < 0 {
		return domainPlusTLD
	}
	return domainPlusTLD[:idx]
}
