package acl

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"gateway/internal/config"
)

func TestEmptyRuleSetAllowsEverything(t *testing.T) {
	e := New(nil)
	assert.True(t, e.Allow(net.ParseIP("1.2.3.4"), "", "ANYCOMMAND"))
}

func TestSpecScenario3_DisabledThenEnabledWithCredential(t *testing.T) {
	cfgs := []config.ACLConfig{
		{Disabled: []string{"DEBUG"}},
		{HTTPBasicAuth: "user:password", Enabled: []string{"DEBUG"}},
	}
	e := New(cfgs)
	peer := net.ParseIP("10.0.0.1")

	assert.False(t, e.Allow(peer, "", "DEBUG"), "unauthenticated DEBUG should be denied")
	assert.True(t, e.Allow(peer, "Basic dXNlcjpwYXNzd29yZA==", "DEBUG"), "authenticated DEBUG should be allowed")
}

func TestLaterRuleOverridesEarlier(t *testing.T) {
	cfgs := []config.ACLConfig{
		{Enabled: []string{"*"}},
		{Disabled: []string{"*"}},
	}
	e := New(cfgs)
	assert.False(t, e.Allow(net.ParseIP("1.1.1.1"), "", "GET"))
}

func TestWildcardCIDRMatch(t *testing.T) {
	cfgs := []config.ACLConfig{
		{IP: "192.168.1.0/24", Disabled: []string{"*"}},
	}
	e := New(cfgs)
	assert.False(t, e.Allow(net.ParseIP("192.168.1.50"), "", "GET"))
	assert.True(t, e.Allow(net.ParseIP("10.0.0.50"), "", "GET"))
}

func TestBareIPWidenedToSingleAddress(t *testing.T) {
	cfgs := []config.ACLConfig{
		{IP: "192.168.1.50", Disabled: []string{"*"}},
	}
	e := New(cfgs)
	assert.False(t, e.Allow(net.ParseIP("192.168.1.50"), "", "GET"))
	assert.True(t, e.Allow(net.ParseIP("192.168.1.51"), "", "GET"))
}

func TestCredentialMismatchDoesNotMatchRule(t *testing.T) {
	cfgs := []config.ACLConfig{
		{HTTPBasicAuth: "user:password", Disabled: []string{"*"}},
	}
	e := New(cfgs)
	// No Authorization header: rule with a credential requirement never matches.
	assert.True(t, e.Allow(net.ParseIP("1.1.1.1"), "", "GET"))
	assert.False(t, e.Allow(net.ParseIP("1.1.1.1"), "Basic dXNlcjpwYXNzd29yZA==", "GET"))
}

func TestCaseInsensitiveCommandMatchCaseSensitiveCredential(t *testing.T) {
	cfgs := []config.ACLConfig{
		{HTTPBasicAuth: "user:password", Disabled: []string{"get"}},
	}
	e := New(cfgs)
	assert.False(t, e.Allow(net.ParseIP("1.1.1.1"), "Basic dXNlcjpwYXNzd29yZA==", "GET"))
	// Wrong-case credential must not match.
	assert.True(t, e.Allow(net.ParseIP("1.1.1.1"), "Basic VXNlcjpQYXNzd29yZA==", "GET"))
}
