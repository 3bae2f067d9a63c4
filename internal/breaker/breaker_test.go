package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbeHealthyStaysClosed(t *testing.T) {
	b := New("test", 50*time.Millisecond)
	err := b.Probe(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}

func TestProbeTripsOpenAfterThreeFailures(t *testing.T) {
	b := New("test", 50*time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = b.Probe(context.Background(), func(context.Context) error { return boom })
	}

	assert.Equal(t, "open", b.State())

	err := b.Probe(context.Background(), func(context.Context) error { return nil })
	assert.Error(t, err, "breaker should refuse to call check while open")
}

func TestProbeRecoversAfterCooldown(t *testing.T) {
	b := New("test", 10*time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = b.Probe(context.Background(), func(context.Context) error { return boom })
	}
	assert.Equal(t, "open", b.State())

	time.Sleep(20 * time.Millisecond)

	err := b.Probe(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}
