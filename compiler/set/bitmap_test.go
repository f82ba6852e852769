package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmapSetClear(t *testing.T) {
	s := MakeBitmap(8)

	s.Set(3)
	s.Set(70)

	assert.True(t, s.IsSet(3))
	assert.True(t, s.IsSet(70))
	assert.False(t, s.IsSet(4))

	s.Clear(3)
	assert.False(t, s.IsSet(3))

	assert.Equal(t, 1, s.Size())
}

func TestBitmapOr(t *testing.T) {
	a := MakeBitmap(8)
	a.Set(1)

	b := MakeBitmap(8)
	b.Set(2)

	a.Or(b)

	assert.True(t, a.IsSet(1))
	assert.True(t, a.IsSet(2))
}

func TestBitmapRange(t *testing.T) {
	s := MakeBitmap(8)
	s.Set(0)
	s.Set(5)
	s.Set(64)

	var got []int
	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})

	assert.Equal(t, []int{0, 5, 64}, got)
}

func TestBitmapFirstLast(t *testing.T) {
	s := MakeBitmap(8)

	assert.Equal(t, -1, s.First())

	s.Set(9)
	s.Set(100)

	assert.Equal(t, 9, s.First())
	assert.Equal(t, 100, s.Last())
	assert.Equal(t, 101, s.Len())
}
