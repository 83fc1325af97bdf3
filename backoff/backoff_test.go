package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStrategies(t *testing.T) {
	tests := []struct {
		name    string
		b       Backoff
		attempt int
		want    time.Duration
	}{
		{"constant", Constant(3 * time.Second), 7, 3 * time.Second},
		{"linear first", Linear(time.Second, 5*time.Second), 1, time.Second},
		{"linear third", Linear(time.Second, 5*time.Second), 3, 11 * time.Second},
		{"exponential first", Exponential(time.Second, 2), 1, time.Second},
		{"exponential fourth", Exponential(time.Second, 2), 4, 8 * time.Second},
		{"capped", Capped(Exponential(time.Second, 2), 5*time.Second), 10, 5 * time.Second},
		{"default cap", Default(), 100, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.b.Next(tt.attempt))
		})
	}
}

func TestRandomStaysInRange(t *testing.T) {
	b := Random(2*time.Second, 5*time.Second)
	for i := 1; i < 200; i++ {
		d := b.Next(i)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
	assert.Equal(t, time.Second, Random(time.Second, time.Second).Next(1))
}

func TestJitterBounds(t *testing.T) {
	b := Jitter(Constant(10*time.Second), 0.2)
	for i := 1; i < 200; i++ {
		d := b.Next(i)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}
