package ordering

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(ids ...int64) []Entry {
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{ID: id, Weight: i}
	}
	return out
}

func ids(items []Entry) []int64 {
	out := make([]int64, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}

func weightOf(items []Entry, id int64) int {
	for _, e := range items {
		if e.ID == id {
			return e.Weight
		}
	}
	return -1
}

func TestReorder_MoveDown(t *testing.T) {
	// a=1, b=2, c=3
	items := entries(1, 2, 3)

	got, err := Reorder(items, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, weightOf(got, 1))
	assert.Equal(t, 0, weightOf(got, 2))
	assert.Equal(t, 1, weightOf(got, 3))
	assert.Equal(t, []int64{2, 3, 1}, ids(got))
}

func TestReorder_MoveUp(t *testing.T) {
	items := entries(1, 2, 3, 4, 5)

	got, err := Reorder(items, 3, 1)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 4, 2, 3, 5}, ids(got))
	for i, e := range got {
		assert.Equal(t, i, e.Weight, "weights stay contiguous")
	}
}

func TestReorder_SameIndexIsNoop(t *testing.T) {
	items := entries(7, 8, 9)

	got, err := Reorder(items, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestReorder_DoesNotMutateInput(t *testing.T) {
	items := entries(1, 2, 3)
	_, err := Reorder(items, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, entries(1, 2, 3), items)
}

func TestReorder_OutOfRange(t *testing.T) {
	items := entries(1, 2)

	for _, tc := range []struct{ from, to int }{{-1, 0}, {0, 2}, {5, 1}} {
		_, err := Reorder(items, tc.from, tc.to)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "move %d -> %d", tc.from, tc.to)
	}

	_, err := Reorder(nil, 0, 0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

// Every move over a contiguous list lands the moved item at newIndex and keeps
// the other items in their relative order.
func TestReorder_AllMovesPreserveRelativeOrder(t *testing.T) {
	const n = 6
	for from := 0; from < n; from++ {
		for to := 0; to < n; to++ {
			items := entries(10, 11, 12, 13, 14, 15)
			moved := items[from].ID

			got, err := Reorder(items, from, to)
			require.NoError(t, err)

			assert.Equal(t, moved, got[to].ID, "move %d -> %d", from, to)

			var rest, want []int64
			for _, e := range got {
				if e.ID != moved {
					rest = append(rest, e.ID)
				}
			}
			for _, e := range items {
				if e.ID != moved {
					want = append(want, e.ID)
				}
			}
			assert.Equal(t, want, rest, "move %d -> %d", from, to)

			if from < to {
				assert.Equal(t, items[to].Weight, weightOf(got, moved))
				for i := from + 1; i <= to; i++ {
					assert.Equal(t, items[i].Weight-1, weightOf(got, items[i].ID))
				}
			}
		}
	}
}

func TestRemoveAndRenumber(t *testing.T) {
	items := []Entry{{ID: 1, Weight: 0}, {ID: 2, Weight: 1}, {ID: 3, Weight: 2}, {ID: 4, Weight: 3}}

	got, found := RemoveAndRenumber(items, 2)
	assert.True(t, found)
	assert.Equal(t, []Entry{{ID: 1, Weight: 0}, {ID: 3, Weight: 1}, {ID: 4, Weight: 2}}, got)

	got, found = RemoveAndRenumber(items, 99)
	assert.False(t, found)
	assert.Len(t, got, 4)

	got, found = RemoveAndRenumber([]Entry{{ID: 1, Weight: 4}}, 1)
	assert.True(t, found)
	assert.Empty(t, got)
}

func TestRemoveAndRenumber_ClosesGaps(t *testing.T) {
	items := []Entry{{ID: 1, Weight: 3}, {ID: 2, Weight: 7}, {ID: 3, Weight: 9}}

	got, _ := RemoveAndRenumber(items, 1)
	for i, e := range got {
		assert.Equal(t, i, e.Weight)
	}
}

func TestMoveAdjacent(t *testing.T) {
	items := entries(1, 2, 3)

	got, err := MoveAdjacent(items, Up, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 3}, ids(got))

	got, err = MoveAdjacent(items, Down, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, ids(got))
}

func TestMoveAdjacent_Boundaries(t *testing.T) {
	items := entries(1, 2, 3)

	got, err := MoveAdjacent(items, Up, 0)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	got, err = MoveAdjacent(items, Down, 2)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	_, err = MoveAdjacent(items, Down, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = MoveAdjacent(items, Direction("left"), 1)
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("up")
	require.NoError(t, err)
	assert.Equal(t, Up, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestChanged(t *testing.T) {
	before := entries(1, 2, 3)
	after, err := Reorder(before, 0, 1)
	require.NoError(t, err)

	changed := Changed(before, after)
	assert.ElementsMatch(t, []Entry{{ID: 1, Weight: 1}, {ID: 2, Weight: 0}}, changed)
	assert.Empty(t, Changed(before, before))
}

func TestNextWeight(t *testing.T) {
	assert.Equal(t, 0, NextWeight(nil))
	assert.Equal(t, 3, NextWeight(entries(1, 2, 3)))
}
