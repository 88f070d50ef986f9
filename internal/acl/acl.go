// Package acl implements the ordered ACL rule evaluator from spec.md
// §4.3: given a peer address, an optional Basic-auth header, and a
// command name, decide whether the command is allowed.
package acl

import (
	"encoding/base64"
	"net"
	"strings"

	"gateway/internal/config"
)

// Rule is one compiled ACL rule. An empty ruleset (no rules) permits
// every command, per spec.md §3.
type Rule struct {
	subnet     *net.IPNet
	credential string
	hasCred    bool
	enabled    []string
	disabled   []string
}

// Evaluator holds the compiled, ordered rule set.
type Evaluator struct {
	rules []Rule
}

// New compiles ACL rules from configuration. Bare IPs (no "/") are
// widened to a single-address CIDR so net.IPNet.Contains works
// uniformly.
func New(cfgs []config.ACLConfig) *Evaluator {
	rules := make([]Rule, 0, len(cfgs))
	for _, c := range cfgs {
		r := Rule{enabled: c.Enabled, disabled: c.Disabled}
		if c.IP != "" {
			if _, subnet, err := net.ParseCIDR(widenToCIDR(c.IP)); err == nil {
				r.subnet = subnet
			}
		}
		if c.HTTPBasicAuth != "" {
			r.hasCred = true
			r.credential = c.HTTPBasicAuth
		}
		rules = append(rules, r)
	}
	return &Evaluator{rules: rules}
}

func widenToCIDR(ip string) string {
	if strings.Contains(ip, "/") {
		return ip
	}
	if strings.Contains(ip, ":") {
		return ip + "/128"
	}
	return ip + "/32"
}

// Allow evaluates the rule set in declaration order per spec.md §4.3,
// returning whether command is allowed for peer from authHeader (the
// raw "Authorization" header value, or "").
func (e *Evaluator) Allow(peer net.IP, authHeader, command string) bool {
	allowed := true
	for _, rule := range e.rules {
		if !rule.matches(peer, authHeader) {
			continue
		}
		for _, name := range rule.disabled {
			if name == "*" || strings.EqualFold(name, command) {
				allowed = false
			}
		}
		for _, name := range rule.enabled {
			if name == "*" || strings.EqualFold(name, command) {
				allowed = true
			}
		}
	}
	return allowed
}

func (r *Rule) matches(peer net.IP, authHeader string) bool {
	if r.subnet != nil && !r.subnet.Contains(peer) {
		return false
	}
	if r.hasCred {
		creds, ok := decodeBasicAuth(authHeader)
		if !ok || creds != r.credential {
			return false
		}
	}
	return true
}

// decodeBasicAuth decodes an "Authorization: Basic <base64>" header
// value into its unencoded "user:password" form. Comparison against a
// rule's credential is case-sensitive, per spec.md §4.3.
func decodeBasicAuth(header string) (string, bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", false
	}
	return string(decoded), true
}
