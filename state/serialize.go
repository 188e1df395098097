package state

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/sugawarayuuta/sonnet"
)

// PackedPointSize is the size of one point in the packed curve encoding: two uint64 coordinates,
// each written as a little-endian high word followed by a little-endian low word.
const PackedPointSize = 16

func (c *LiquidityCurve) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, len(c.points)*PackedPointSize)
	for _, p := range c.points {
		if !p.X.IsUint64() || !p.Y.IsUint64() {
			return nil, fmt.Errorf("%w: point %s does not fit the packed encoding", ErrInvalidCurve, p)
		}
		buf = appendUint64(buf, p.X.Uint64())
		buf = appendUint64(buf, p.Y.Uint64())
	}
	return buf, nil
}

func (c *LiquidityCurve) UnmarshalBinary(data []byte) error {
	if len(data)%PackedPointSize != 0 {
		return fmt.Errorf("%w: invalid packed curve length %d", ErrInvalidCurve, len(data))
	}
	pts := make([]Point, 0, len(data)/PackedPointSize)
	for off := 0; off < len(data); off += PackedPointSize {
		x := readUint64(data[off:])
		y := readUint64(data[off+8:])
		pts = append(pts, Point{X: new(big.Int).SetUint64(x), Y: new(big.Int).SetUint64(y)})
	}
	if err := validatePoints(pts); err != nil {
		return err
	}
	c.points = pts
	return nil
}

func appendUint64(b []byte, v uint64) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(v>>32))
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func readUint64(b []byte) uint64 {
	hi := binary.LittleEndian.Uint32(b)
	lo := binary.LittleEndian.Uint32(b[4:])
	return uint64(hi)<<32 | uint64(lo)
}

// ParseLiquidityCurve decodes the packed byte encoding of a curve.
func ParseLiquidityCurve(data []byte) (*LiquidityCurve, error) {
	c := &LiquidityCurve{}
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalText encodes the curve as base64 of its packed encoding.
func (c *LiquidityCurve) MarshalText() ([]byte, error) {
	data, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(data)), nil
}

func (c *LiquidityCurve) UnmarshalText(text []byte) error {
	data, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCurve, err)
	}
	return c.UnmarshalBinary(data)
}

// MarshalJSON writes the curve as a list of [x, y] pairs.
func (c *LiquidityCurve) MarshalJSON() ([]byte, error) {
	raw := make([][2]*big.Int, 0, len(c.points))
	for _, p := range c.points {
		raw = append(raw, [2]*big.Int{p.X, p.Y})
	}
	return sonnet.Marshal(raw)
}

// UnmarshalJSON accepts either the base64 packed form or a list of [x, y] pairs.
func (c *LiquidityCurve) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var packed string
		if err := sonnet.Unmarshal(data, &packed); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCurve, err)
		}
		return c.UnmarshalText([]byte(packed))
	}
	var raw [][2]*big.Int
	if err := sonnet.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCurve, err)
	}
	pts := make([]Point, 0, len(raw))
	for _, p := range raw {
		pts = append(pts, Point{X: p[0], Y: p[1]})
	}
	if err := validatePoints(pts); err != nil {
		return err
	}
	c.points = pts
	return nil
}

// MarshalYAML writes the curve as a list of [x, y] pairs.
func (c *LiquidityCurve) MarshalYAML() (interface{}, error) {
	out := make([][2]uint64, 0, len(c.points))
	for _, p := range c.points {
		if !p.X.IsUint64() || !p.Y.IsUint64() {
			text, err := c.MarshalText()
			return string(text), err
		}
		out = append(out, [2]uint64{p.X.Uint64(), p.Y.Uint64()})
	}
	return out, nil
}

// UnmarshalYAML accepts either the base64 packed form or a list of [x, y] pairs.
func (c *LiquidityCurve) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCurve, err)
	}
	switch v := raw.(type) {
	case nil:
		c.points = nil
		return nil
	case string:
		return c.UnmarshalText([]byte(v))
	case []any:
		pts := make([]Point, 0, len(v))
		for i, item := range v {
			pair, ok := item.([]any)
			if !ok || len(pair) != 2 {
				return fmt.Errorf("%w: point %d must be an [x, y] pair", ErrInvalidCurve, i)
			}
			x, err := yamlNumber(pair[0])
			if err != nil {
				return err
			}
			y, err := yamlNumber(pair[1])
			if err != nil {
				return err
			}
			pts = append(pts, Point{X: x, Y: y})
		}
		if err := validatePoints(pts); err != nil {
			return err
		}
		c.points = pts
		return nil
	default:
		return fmt.Errorf("%w: unsupported yaml value %T", ErrInvalidCurve, raw)
	}
}

func yamlNumber(v any) (*big.Int, error) {
	switch n := v.(type) {
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case float64:
		if n != math.Trunc(n) || n < 0 {
			return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidCurve, n)
		}
		x, _ := big.NewFloat(n).Int(nil)
		return x, nil
	case string:
		x, ok := new(big.Int).SetString(n, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidCurve, n)
		}
		return x, nil
	default:
		return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidCurve, v)
	}
}
