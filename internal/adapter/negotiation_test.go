package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNegotiator_DefaultsUntilAccepted(t *testing.T) {
	t.Parallel()
	n := NewFormatNegotiator(time.Hour)
	assert.Equal(t, DateFormatISO, n.Preferred("pncp", DateFormatISO))

	n.Accept("pncp", DateFormatBRSlash)
	assert.Equal(t, DateFormatBRSlash, n.Preferred("pncp", DateFormatISO))
}

func TestFormatNegotiator_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	n := NewFormatNegotiator(time.Hour)
	now := time.Now()
	n.now = func() time.Time { return now }

	n.Accept("pncp", DateFormatBRSlash)
	n.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.Equal(t, DateFormatISO, n.Preferred("pncp", DateFormatISO))
}

func TestPageSizeStepper_StepsDownToFloor(t *testing.T) {
	t.Parallel()
	s := NewPageSizeStepper(50, 10)
	assert.Equal(t, 50, s.Current())
	assert.Equal(t, 25, s.StepDown())
	assert.Equal(t, 12, s.StepDown())
	assert.Equal(t, 10, s.StepDown())
	assert.Equal(t, 10, s.StepDown())
}
