package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEveryN(t *testing.T) {
	p := NewEveryN(3)
	var fired []int
	for i := 1; i <= 7; i++ {
		if p.Observe() {
			fired = append(fired, i)
		}
	}
	assert.Equal(t, []int{3, 6}, fired)
	assert.Equal(t, 1, p.Pending())
}

func TestEveryN_NonPositiveMeansEveryUpsert(t *testing.T) {
	p := NewEveryN(0)
	assert.True(t, p.Observe())
	assert.True(t, p.Observe())
}

func TestNever(t *testing.T) {
	var p FlushPolicy = Never{}
	for i := 0; i < 100; i++ {
		assert.False(t, p.Observe())
	}
}
