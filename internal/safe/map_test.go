package safe

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	var m Map[string, int]
	assert.Zero(t, m.Len())
	assert.Empty(t, m.Values())

	m.Set("foo", 1)
	m.Set("bar", 2)
	m.Set("foo", 3)
	assert.Equal(t, 2, m.Len())
	values := m.Values()
	sort.Ints(values)
	assert.Equal(t, []int{2, 3}, values)

	assert.True(t, m.Delete("foo"))
	assert.False(t, m.Delete("foo"))
	assert.Equal(t, []int{2}, m.Values())
}

func TestMapRangeStops(t *testing.T) {
	var m Map[int, int]
	for i := range 10 {
		m.Set(i, i)
	}
	n := 0
	m.Range(func(int, int) bool {
		n++
		return n < 3
	})
	assert.Equal(t, 3, n)
}

func TestMapConcurrent(t *testing.T) {
	var m Map[int, int]
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set(i, i*i)
			m.Len()
		}()
	}
	wg.Wait()
	values := m.Values()
	sort.Ints(values)
	assert.Len(t, values, 50)
	assert.Equal(t, 49*49, values[49])
}
