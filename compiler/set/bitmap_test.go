package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap(t *testing.T) {
	s := MakeBitmap(4)

	s.Set(1)
	s.Set(3)
	s.Set(200)

	assert.True(t, s.IsSet(1))
	assert.True(t, s.IsSet(3))
	assert.True(t, s.IsSet(200))
	assert.False(t, s.IsSet(2))
	assert.False(t, s.IsSet(1000))

	assert.Equal(t, 3, s.Size())
	assert.Equal(t, 1, s.First())
	assert.Equal(t, 200, s.Last())

	var got []int

	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})

	assert.Equal(t, []int{1, 3, 200}, got)

	s.Clear(3)
	assert.False(t, s.IsSet(3))
	assert.Equal(t, 2, s.Size())

	q := NewBitmap(0)
	q.Set(7)
	q.Or(s)

	assert.True(t, q.IsSet(1))
	assert.True(t, q.IsSet(7))
	assert.True(t, q.IsSet(200))

	c := s.Copy()
	c.Reset()
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 2, s.Size())
}
