package domain

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Domain Validation
// =============================================================================

const maxDomainLength = 255

var (
	ErrDomainEmpty   = errors.New("domain cannot be empty")
	ErrDomainTooLong = errors.New("domain is too long (max 255 characters)")
	ErrDomainInvalid = errors.New("invalid domain format")
)

// domainRegex is practical rather than RFC complete: dot separated labels of up
// to 63 characters followed by an alphabetic TLD.
var domainRegex = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// NormalizeDomain trims and lowercases a domain.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// ValidateDomain checks that domain can be used in a Host rule. Besides
// ordinary hostnames it accepts localhost and IPv4 addresses, each optionally
// followed by ":port", for development setups.
func ValidateDomain(domain string) error {
	d := NormalizeDomain(domain)
	if d == "" {
		return ErrDomainEmpty
	}
	if len(d) > maxDomainLength {
		return ErrDomainTooLong
	}

	if host, port, ok := strings.Cut(d, ":"); ok && isDigits(port) && !strings.Contains(port, ":") {
		d = host
	}

	if d == "localhost" || isIPv4(d) {
		return nil
	}
	if !domainRegex.MatchString(d) {
		return ErrDomainInvalid
	}
	return nil
}

func isIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if !isDigits(p) {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
