package units_test

import (
	"testing"

	"github.com/stratalabs/vestflow/internal/units"
	"github.com/stretchr/testify/assert"
)

func TestToHuman(t *testing.T) {
	assert.Equal(t, 1.0, units.ToHuman(1_000_000_000, 9))
	assert.Equal(t, 0.5, units.ToHuman(500_000_000, 9))
	assert.Equal(t, 0.0, units.ToHuman(0, 9))
	assert.Equal(t, 1.0, units.ToHuman(1_000_000, 6))
}

func TestToBase(t *testing.T) {
	assert.Equal(t, uint64(1_000_000_000), units.ToBase(1.0, 9))
	assert.Equal(t, uint64(500_000_000), units.ToBase(0.5, 9))
	assert.Equal(t, uint64(0), units.ToBase(0, 9))
	assert.Equal(t, uint64(0), units.ToBase(-1.5, 9))

	// Rounds to the nearest base unit.
	assert.Equal(t, uint64(1), units.ToBase(0.0000000009, 9))
	assert.Equal(t, uint64(0), units.ToBase(0.0000000004, 9))
}

func TestRoundTrip(t *testing.T) {
	// toBase(toHuman(b)) == b for representable base amounts.
	for _, b := range []uint64{0, 1, 999, 123_456_789, 1_000_000_000, 42_000_000_000_000} {
		assert.Equal(t, b, units.ToBase(units.ToHuman(b, units.DefaultDecimals), units.DefaultDecimals), "base=%d", b)
	}
}
