package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculator_FireSafetyThreeYears(t *testing.T) {
	c := NewCalculator(nil, nil)
	issue := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	expiry, note, ok := c.Expiry("Fire Safety Permit", issue)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), expiry)
	assert.Contains(t, note, "FIRE SAFETY")
	assert.Contains(t, note, "1095 days")
}

func TestCalculator_TobaccoOneYear(t *testing.T) {
	c := NewCalculator(nil, nil)
	issue := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

	expiry, note, ok := c.Expiry("tobacco retailer permit", issue)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC), expiry)
	assert.Contains(t, note, "TOBACCO")
}

func TestCalculator_UnknownTypeNoMatch(t *testing.T) {
	c := NewCalculator(nil, nil)
	_, _, ok := c.Expiry("Llama Grooming Certification", time.Now())
	assert.False(t, ok)
}

func TestCalculator_EmptyType(t *testing.T) {
	c := NewCalculator(nil, nil)
	_, _, ok := c.Expiry("  ", time.Now())
	assert.False(t, ok)
}
