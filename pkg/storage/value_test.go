package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_Equality(t *testing.T) {
	assert.True(t, IntValue(3).Equal(DoubleValue(3)))
	assert.Equal(t, IntValue(3).Key(), DoubleValue(3).Key())
	assert.False(t, StringValue("3").Equal(IntValue(3)))
	assert.True(t, ArrayValue(IntValue(1), StringValue("a")).Equal(ArrayValue(IntValue(1), StringValue("a"))))
	assert.True(t, Value{}.IsNull())

	m := MapValue(map[string]Value{"b": IntValue(2), "a": IntValue(1)})
	keys, _, ok := m.AsMap()
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, keys)
	v, ok := m.MapGet("b")
	assert.True(t, ok)
	assert.Equal(t, int64(2), v.Interface())
	assert.Equal(t, "{a: 1, b: 2}", m.String())
}

func TestAttributeSet(t *testing.T) {
	s := NewAttributeSet(Attribute{ID: 2, Value: IntValue(1)}, Attribute{ID: 0, Value: StringValue("x")})
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, AttributeID(2), s.At(0).ID)

	assert.False(t, s.Set(2, IntValue(1)), "same value is not a change")
	assert.True(t, s.Set(2, IntValue(5)))
	assert.True(t, s.Remove(0))
	assert.False(t, s.Remove(0))
	assert.Equal(t, 1, s.Count())

	c := s.Clone()
	c.Set(9, BoolValue(true))
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 0, (*AttributeSet)(nil).Count())
}

func TestEdgeCell(t *testing.T) {
	c := SingleEdge(4)
	assert.Equal(t, 1, c.Len())
	c = c.With(4)
	assert.False(t, c.IsMultiple())
	c = c.With(9).With(1)
	assert.True(t, c.IsMultiple())
	assert.Equal(t, []EdgeID{4, 9, 1}, c.IDs())
	assert.Equal(t, EdgeID(9), c.At(1))

	c = c.Without(9).Without(4)
	assert.False(t, c.IsMultiple())
	assert.Equal(t, EdgeID(1), c.Single())
	assert.True(t, c.Without(1).IsEmpty())
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		in      string
		want    []float32
		wantErr bool
	}{
		{in: "[0.5, 1, -2]", want: []float32{0.5, 1, -2}},
		{in: "0.5 1\t-2", want: []float32{0.5, 1, -2}},
		{in: " 3 ", want: []float32{3}},
		{in: "[]", wantErr: true},
		{in: "", wantErr: true},
		{in: "1,x,2", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseVector(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidData, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
