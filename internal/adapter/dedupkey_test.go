package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupKey_StableAcrossWhitespace(t *testing.T) {
	t.Parallel()
	a := DedupKey("12.345.678/0001-99", "PE-001/2026", "2026-07-01")
	b := DedupKey(" 12.345.678/0001-99 ", "PE-001/2026", "2026-07-01")
	assert.Equal(t, a, b)
}

func TestDedupKey_DiffersOnProcurementCode(t *testing.T) {
	t.Parallel()
	a := DedupKey("12.345.678/0001-99", "PE-001/2026", "2026-07-01")
	b := DedupKey("12.345.678/0001-99", "PE-002/2026", "2026-07-01")
	assert.NotEqual(t, a, b)
}

func TestDedupKey_NoBoundaryCollision(t *testing.T) {
	t.Parallel()
	a := DedupKey("AB", "C", "2026-07-01")
	b := DedupKey("A", "BC", "2026-07-01")
	assert.NotEqual(t, a, b)
}
