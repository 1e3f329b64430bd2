package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func pctCode(rate string) *Code {
	return &Code{Code: "PCT", Percentage: true, Amount: decimal.RequireFromString(rate), Active: true}
}

func fixedCode(amount string) *Code {
	return &Code{Code: "FIX", Percentage: false, Amount: decimal.RequireFromString(amount), Active: true}
}

func TestApply_Percentage(t *testing.T) {
	got := Apply(pctCode("10"), decimal.RequireFromString("200000"))
	assert.True(t, decimal.RequireFromString("20000").Equal(got))
}

func TestApply_PercentageTruncates(t *testing.T) {
	// 15% of 0.99 = 0.1485; truncated, not rounded up.
	got := Apply(pctCode("15"), decimal.RequireFromString("0.99"))
	assert.True(t, decimal.RequireFromString("0.14").Equal(got))
}

func TestApply_FixedCappedAtSubtotal(t *testing.T) {
	got := Apply(fixedCode("999"), decimal.RequireFromString("10"))
	assert.True(t, decimal.RequireFromString("10").Equal(got))
}

func TestApply_Fixed(t *testing.T) {
	got := Apply(fixedCode("5"), decimal.RequireFromString("10"))
	assert.True(t, decimal.RequireFromString("5").Equal(got))
}

func TestApply_NeverNegative(t *testing.T) {
	got := Apply(pctCode("10"), decimal.Zero)
	assert.False(t, got.IsNegative())
	assert.True(t, got.IsZero())
}

func TestApplicable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	c := pctCode("10")
	assert.True(t, c.Applicable(decimal.NewFromInt(100), now))

	inactive := pctCode("10")
	inactive.Active = false
	assert.False(t, inactive.Applicable(decimal.NewFromInt(100), now))

	expired := pctCode("10")
	expired.ExpiresAt = &past
	assert.False(t, expired.Applicable(decimal.NewFromInt(100), now))

	valid := pctCode("10")
	valid.ExpiresAt = &future
	assert.True(t, valid.Applicable(decimal.NewFromInt(100), now))

	minOrder := pctCode("10")
	minOrder.MinOrderValue = decimal.NewFromInt(500)
	assert.False(t, minOrder.Applicable(decimal.NewFromInt(100), now))
	assert.True(t, minOrder.Applicable(decimal.NewFromInt(500), now))
}
