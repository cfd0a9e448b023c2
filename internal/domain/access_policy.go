package domain

import "strings"

// AccessPolicy is the resolved security configuration consumed by the access gate.
type AccessPolicy struct {
	AllowedDomains []string `json:"allowedDomains"`
	WhiteListMode  bool     `json:"whiteListMode"`
}

// ParseDomainList splits a comma separated allow-list, dropping blanks.
func ParseDomainList(raw string) []string {
	var domains []string
	for _, d := range strings.Split(raw, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}
