package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_ReplaceUpdatesContentAndVersion(t *testing.T) {
	t.Parallel()
	d := NewDocument("hello world")

	require.NoError(t, d.Replace(6, 5, "there"))
	assert.Equal(t, "hello there", d.Get())
	assert.Equal(t, 11, d.Len())
	assert.Equal(t, uint64(1), d.Version())
}

func TestDocument_ReplaceOutOfRange(t *testing.T) {
	t.Parallel()
	d := NewDocument("abc")

	for _, tc := range []struct {
		name           string
		offset, length int
	}{
		{"negative offset", -1, 0},
		{"negative length", 0, -1},
		{"past end", 2, 5},
	} {
		err := d.Replace(tc.offset, tc.length, "x")
		assert.ErrorIs(t, err, ErrOutOfRange, tc.name)
	}
	assert.Equal(t, "abc", d.Get())
	assert.Equal(t, uint64(0), d.Version())
}

func TestDocument_EventCoordinates(t *testing.T) {
	t.Parallel()
	d := NewDocument("line one\nline two\n")

	var got []Event
	d.Subscribe(func(ev Event) { got = append(got, ev) })

	// Replace "two" with "2\nthree".
	require.NoError(t, d.Replace(14, 3, "2\nthree"))
	require.Len(t, got, 1)
	ev := got[0]

	assert.Equal(t, 14, ev.Offset)
	assert.Equal(t, 3, ev.Length)
	assert.Equal(t, "2\nthree", ev.Text)
	assert.Equal(t, uint64(1), ev.Version)
	assert.Equal(t, uint32(14), ev.StartByte)
	assert.Equal(t, uint32(17), ev.OldEndByte)
	assert.Equal(t, uint32(21), ev.NewEndByte)
	assert.Equal(t, Point{Row: 1, Column: 5}, ev.StartPoint)
	assert.Equal(t, Point{Row: 1, Column: 8}, ev.OldEndPoint)
	assert.Equal(t, Point{Row: 2, Column: 5}, ev.NewEndPoint)
}

func TestDocument_SetNotifiesWholeRange(t *testing.T) {
	t.Parallel()
	d := NewDocument("old")

	var got Event
	d.Subscribe(func(ev Event) { got = ev })
	d.Set("brand new")

	assert.Equal(t, "brand new", d.Get())
	assert.Equal(t, 0, got.Offset)
	assert.Equal(t, 3, got.Length)
	assert.Equal(t, "brand new", got.Text)
}

func TestDocument_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	d := NewDocument("")

	var a, b int
	unsubA := d.Subscribe(func(Event) { a++ })
	d.Subscribe(func(Event) { b++ })

	d.Set("1")
	unsubA()
	unsubA() // second call is a no-op
	d.Set("2")

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestDocument_ListenersRunInSubscriptionOrder(t *testing.T) {
	t.Parallel()
	d := NewDocument("")

	var order []string
	d.Subscribe(func(Event) { order = append(order, "first") })
	d.Subscribe(func(Event) { order = append(order, "second") })
	d.Set("x")

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPointAt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s      string
		offset int
		want   Point
	}{
		{"", 0, Point{0, 0}},
		{"abc", 2, Point{0, 2}},
		{"ab\ncd", 3, Point{1, 0}},
		{"ab\ncd", 5, Point{1, 2}},
		{"ab\n", 10, Point{1, 0}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PointAt(tt.s, tt.offset), "PointAt(%q, %d)", tt.s, tt.offset)
	}
}

func TestRegion(t *testing.T) {
	t.Parallel()
	r := Region{Offset: 4, Length: 6}
	assert.Equal(t, 10, r.End())
	assert.Equal(t, "[4,10)", r.String())
}

func TestDocument_SnapshotPairsContentWithVersion(t *testing.T) {
	t.Parallel()
	d := NewDocument("ab")
	require.NoError(t, d.Replace(1, 0, "x"))

	content, version := d.Snapshot()
	assert.Equal(t, "axb", content)
	assert.Equal(t, uint64(1), version)
}
