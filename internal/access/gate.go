// Package access decides whether a file may be served to a request before any
// backend I/O happens. All functions are pure; the policy is passed in.
package access

import (
	"net/url"
	"strings"

	"github.com/zzenonn/zgate/internal/domain"
	"github.com/zzenonn/zgate/internal/protocol"
)

// Decision is the outcome of the access gate.
type Decision int

const (
	Allow Decision = iota
	BlockImage
	AllowListNotice
)

func (d Decision) String() string {
	switch d {
	case BlockImage:
		return "block"
	case AllowListNotice:
		return "allow_list_notice"
	default:
		return "allow"
	}
}

// Evaluate runs the referer check followed by the label check.
func Evaluate(referer string, origin *url.URL, record *domain.ObjectRecord, policy domain.AccessPolicy) Decision {
	if d := CheckReferer(referer, origin, policy); d != Allow {
		return d
	}
	return CheckLabels(referer, origin, record, policy)
}

// CheckReferer enforces the domain allow-list. The gateway's own hostname is
// always on a non-empty list; an empty list allows everything.
func CheckReferer(referer string, origin *url.URL, policy domain.AccessPolicy) Decision {
	if referer == "" {
		return Allow
	}

	allowed := normalize(policy.AllowedDomains)
	if len(allowed) == 0 {
		return Allow
	}
	if origin != nil && origin.Hostname() != "" {
		allowed = append(allowed, strings.ToLower(origin.Hostname()))
	}

	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return BlockImage
	}

	host := strings.ToLower(u.Hostname())
	for _, d := range allowed {
		if MatchDomain(host, d) {
			return Allow
		}
	}
	return BlockImage
}

// CheckLabels applies the per-object labels and the site-wide allow-list mode.
// Navigation from the gateway's own pages skips the labels.
func CheckLabels(referer string, origin *url.URL, record *domain.ObjectRecord, policy domain.AccessPolicy) Decision {
	if protocol.IsSameOrigin(referer, origin) {
		return Allow
	}
	if record == nil {
		return Allow
	}

	switch record.Label {
	case domain.LabelWhite:
		return Allow
	case domain.LabelBlock, domain.LabelAdult:
		return BlockImage
	}

	if policy.WhiteListMode {
		return AllowListNotice
	}
	return Allow
}

// MatchDomain reports whether host is domain or one of its subdomains.
func MatchDomain(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

func normalize(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
