package iprules

import (
	"testing"

	"geogate/internal/models"

	"github.com/stretchr/testify/assert"
)

func rule(cidr, action string) models.IPRule {
	return models.IPRule{CIDR: cidr, Action: action, Active: true}
}

func TestEvaluate_EmptyRuleSetAllows(t *testing.T) {
	allowed, reason := Evaluate(nil, "203.0.113.7")
	assert.True(t, allowed)
	assert.Equal(t, "no IP rules configured", reason)
}

func TestEvaluate_NoMatchDenies(t *testing.T) {
	rules := []models.IPRule{rule("10.0.0.0/8", models.ActionAllow)}

	allowed, reason := Evaluate(rules, "203.0.113.7")
	assert.False(t, allowed)
	assert.Equal(t, "no matching IP rule", reason)
}

func TestEvaluate_SpecificityBeatsBroaderRange(t *testing.T) {
	rules := []models.IPRule{
		rule("10.0.0.0/8", models.ActionDeny),
		rule("10.0.0.5/32", models.ActionAllow),
	}

	allowed, reason := Evaluate(rules, "10.0.0.5")
	assert.True(t, allowed)
	assert.Equal(t, "matched rule 10.0.0.5/32 (allow)", reason)

	// Other addresses in the /8 still hit the broad deny.
	allowed, reason = Evaluate(rules, "10.0.0.6")
	assert.False(t, allowed)
	assert.Equal(t, "matched rule 10.0.0.0/8 (deny)", reason)
}

func TestEvaluate_BareAddressIsExactMatch(t *testing.T) {
	rules := []models.IPRule{rule("192.0.2.1", models.ActionAllow)}

	allowed, _ := Evaluate(rules, "192.0.2.1")
	assert.True(t, allowed)

	allowed, reason := Evaluate(rules, "192.0.2.2")
	assert.False(t, allowed)
	assert.Equal(t, "no matching IP rule", reason)
}

func TestEvaluate_BareAddressBeatsCIDR(t *testing.T) {
	rules := []models.IPRule{
		rule("192.0.2.0/24", models.ActionDeny),
		rule("192.0.2.1", models.ActionAllow),
	}

	allowed, reason := Evaluate(rules, "192.0.2.1")
	assert.True(t, allowed)
	assert.Equal(t, "matched rule 192.0.2.1 (allow)", reason)
}

func TestEvaluate_MalformedRuleIsSkipped(t *testing.T) {
	rules := []models.IPRule{
		rule("not-a-cidr", models.ActionDeny),
		rule("203.0.113.0/24", models.ActionAllow),
	}

	allowed, reason := Evaluate(rules, "203.0.113.7")
	assert.True(t, allowed)
	assert.Equal(t, "matched rule 203.0.113.0/24 (allow)", reason)
}

func TestEvaluate_OnlyMalformedRulesDenies(t *testing.T) {
	rules := []models.IPRule{rule("999.999.0.0/99", models.ActionAllow)}

	allowed, reason := Evaluate(rules, "203.0.113.7")
	assert.False(t, allowed)
	assert.Equal(t, "no matching IP rule", reason)
}

func TestEvaluate_DeclaredPriorityIsIgnored(t *testing.T) {
	// The /32 wins even though the /8 carries a higher declared priority.
	rules := []models.IPRule{
		{CIDR: "10.0.0.0/8", Action: models.ActionDeny, Active: true, Priority: 100},
		{CIDR: "10.0.0.5/32", Action: models.ActionAllow, Active: true, Priority: 1},
	}

	allowed, _ := Evaluate(rules, "10.0.0.5")
	assert.True(t, allowed)
}

func TestEvaluate_TieBrokenByListOrder(t *testing.T) {
	rules := []models.IPRule{
		rule("10.0.0.0/24", models.ActionDeny),
		rule("10.0.0.0/24", models.ActionAllow),
	}

	allowed, reason := Evaluate(rules, "10.0.0.9")
	assert.False(t, allowed)
	assert.Equal(t, "matched rule 10.0.0.0/24 (deny)", reason)
}

func TestEvaluate_IPv6(t *testing.T) {
	rules := []models.IPRule{
		rule("2001:db8::/32", models.ActionDeny),
		rule("2001:db8::1", models.ActionAllow),
	}

	allowed, _ := Evaluate(rules, "2001:db8::1")
	assert.True(t, allowed)

	allowed, _ = Evaluate(rules, "2001:db8::2")
	assert.False(t, allowed)
}

func TestEvaluate_Deterministic(t *testing.T) {
	rules := []models.IPRule{
		rule("10.0.0.0/8", models.ActionDeny),
		rule("10.0.0.0/16", models.ActionAllow),
		rule("10.0.0.0/24", models.ActionDeny),
	}

	firstAllowed, firstReason := Evaluate(rules, "10.0.0.1")
	for i := 0; i < 50; i++ {
		allowed, reason := Evaluate(rules, "10.0.0.1")
		assert.Equal(t, firstAllowed, allowed)
		assert.Equal(t, firstReason, reason)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("10.0.0.0/8"))
	assert.True(t, Valid("192.0.2.1"))
	assert.True(t, Valid("2001:db8::/32"))
	assert.False(t, Valid("not-a-cidr"))
	assert.False(t, Valid("10.0.0.0/99"))
}
