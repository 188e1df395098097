package state

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
	"pgregory.net/rapid"
)

func TestMarshalBinary(t *testing.T) {
	empty, err := (&LiquidityCurve{}).MarshalBinary()
	require.NoError(t, err)
	assert.Empty(t, empty)

	buf, err := MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 20}).MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, 32)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[12:]))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(buf[20:]))
	assert.Equal(t, uint32(20), binary.LittleEndian.Uint32(buf[28:]))
}

func TestMarshalBinary_HighWord(t *testing.T) {
	c := MustLiquidityCurve([2]int64{1 << 32, 1<<32 + 7})
	buf, err := c.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[8:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[12:]))

	parsed, err := ParseLiquidityCurve(buf)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(c))
}

func TestParseLiquidityCurve(t *testing.T) {
	original := MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 20})
	buf, err := original.MarshalBinary()
	require.NoError(t, err)

	parsed, err := ParseLiquidityCurve(buf)
	require.NoError(t, err)
	assertPoints(t, [][2]int64{{0, 0}, {10, 20}}, parsed)

	empty, err := ParseLiquidityCurve([]byte{})
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestParseLiquidityCurve_Invalid(t *testing.T) {
	_, err := ParseLiquidityCurve([]byte{0})
	assert.ErrorIs(t, err, ErrInvalidCurve)
	assert.ErrorContains(t, err, "invalid packed curve length 1")

	// decreasing y
	buf, err := MustLiquidityCurve([2]int64{0, 10}).MarshalBinary()
	require.NoError(t, err)
	more, err := MustLiquidityCurve([2]int64{5, 0}).MarshalBinary()
	require.NoError(t, err)
	_, err = ParseLiquidityCurve(append(buf, more...))
	assert.ErrorIs(t, err, ErrInvalidCurve)
}

func TestMarshalText(t *testing.T) {
	original := MustLiquidityCurve([2]int64{0, 0}, [2]int64{10, 20})
	text, err := original.MarshalText()
	require.NoError(t, err)
	raw, err := original.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), string(text))

	parsed := &LiquidityCurve{}
	require.NoError(t, parsed.UnmarshalText(text))
	assert.True(t, parsed.Equal(original))

	assert.ErrorIs(t, parsed.UnmarshalText([]byte("not base64!")), ErrInvalidCurve)
}

func TestCurveJSON(t *testing.T) {
	c := &LiquidityCurve{}
	require.NoError(t, sonnet.Unmarshal([]byte(`[[0, 0], [50, 60], [100000000000001, 49800199999]]`), c))
	assertPoints(t, [][2]int64{{0, 0}, {50, 60}, {100000000000001, 49800199999}}, c)

	data, err := sonnet.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[[0, 0], [50, 60], [100000000000001, 49800199999]]`, string(data))

	text, err := c.MarshalText()
	require.NoError(t, err)
	packed := &LiquidityCurve{}
	require.NoError(t, sonnet.Unmarshal([]byte(`"`+string(text)+`"`), packed))
	assert.True(t, packed.Equal(c))

	err = sonnet.Unmarshal([]byte(`[[10, 0], [5, 5]]`), &LiquidityCurve{})
	assert.ErrorContains(t, err, "x-coordinates must strictly increase")
}

func TestCurveYAML(t *testing.T) {
	type holder struct {
		Points *LiquidityCurve `yaml:"points"`
	}
	h := holder{}
	require.NoError(t, yaml.Unmarshal([]byte("points: [[0, 0], [200, 100]]\n"), &h))
	assertPoints(t, [][2]int64{{0, 0}, {200, 100}}, h.Points)

	out, err := yaml.Marshal(h)
	require.NoError(t, err)
	back := holder{}
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.True(t, back.Points.Equal(h.Points))

	text, err := h.Points.MarshalText()
	require.NoError(t, err)
	packed := holder{}
	require.NoError(t, yaml.Unmarshal([]byte("points: "+string(text)+"\n"), &packed))
	assert.True(t, packed.Points.Equal(h.Points))

	err = yaml.Unmarshal([]byte("points: [[0, 5], [10, 1]]\n"), &holder{})
	assert.ErrorContains(t, err, "y-coordinates must increase")
	err = yaml.Unmarshal([]byte("points: [[0, 5, 1]]\n"), &holder{})
	assert.ErrorContains(t, err, "must be an [x, y] pair")
}

func TestPackedRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := genCurve().Draw(t, "curve")
		buf, err := c.MarshalBinary()
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		parsed, err := ParseLiquidityCurve(buf)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		again, err := parsed.MarshalBinary()
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(buf) != string(again) {
			t.Fatalf("round trip changed %x to %x", buf, again)
		}
	})
}
