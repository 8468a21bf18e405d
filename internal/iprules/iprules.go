// Package iprules decides allow/deny for a client IP against a site's
// CIDR rule set. An unconfigured site is open; a configured site with no
// matching rule is closed.
package iprules

import (
	"fmt"
	"log"
	"net"
	"sort"
	"strings"

	"geogate/internal/models"
)

const (
	ReasonNoRules = "no IP rules configured"
	ReasonNoMatch = "no matching IP rule"
)

// Evaluate tests clientIP against rules and returns the verdict with a
// human-readable reason. Matching rules are ranked by prefix specificity;
// the most specific match wins regardless of the rules' declared priority.
// The sort is stable so repeated evaluation of the same inputs is
// deterministic.
func Evaluate(rules []models.IPRule, clientIP string) (bool, string) {
	if len(rules) == 0 {
		return true, ReasonNoRules
	}

	var matched []models.IPRule
	for _, rule := range rules {
		ok, err := matches(rule.CIDR, clientIP)
		if err != nil {
			log.Printf("iprules: skipping malformed rule %q: %v", rule.CIDR, err)
			continue
		}
		if ok {
			matched = append(matched, rule)
		}
	}

	if len(matched) == 0 {
		return false, ReasonNoMatch
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return prefixLength(matched[i].CIDR) > prefixLength(matched[j].CIDR)
	})

	winner := matched[0]
	return winner.Action == models.ActionAllow, fmt.Sprintf("matched rule %s (%s)", winner.CIDR, winner.Action)
}

// Valid reports whether cidr parses as a single address or a CIDR network.
func Valid(cidr string) bool {
	if !strings.Contains(cidr, "/") {
		return net.ParseIP(cidr) != nil
	}
	_, _, err := net.ParseCIDR(cidr)
	return err == nil
}

// matches tests whether ip falls within the rule's CIDR. A bare address
// rule is an exact match on the textual address.
func matches(cidr, ip string) (bool, error) {
	if !strings.Contains(cidr, "/") {
		if net.ParseIP(cidr) == nil {
			return false, fmt.Errorf("invalid address %q", cidr)
		}
		return ip == cidr, nil
	}

	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false, err
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false, nil
	}
	return network.Contains(parsed), nil
}

// prefixLength ranks a rule's specificity. Bare addresses count as a full
// host prefix (32 for IPv4, 128 for IPv6); anything unparseable ranks last.
func prefixLength(cidr string) int {
	if !strings.Contains(cidr, "/") {
		ip := net.ParseIP(cidr)
		if ip == nil {
			return 0
		}
		if ip.To4() != nil {
			return 32
		}
		return 128
	}

	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return 0
	}
	ones, _ := network.Mask.Size()
	return ones
}
