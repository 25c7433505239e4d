package regmap

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

const testMap = `
name: test
blocks:
  - name: MODEM
    base: 0x40086000
    registers:
      - name: CF
        offset: 0x020
        reset: 0x80000000
        fields:
          - {name: DEC0, offset: 0, width: 3}
          - {name: DEC1, offset: 3, width: 14}
          - {name: STATUS, offset: 20, width: 2, access: R}
  - name: AGC
    base: 0x40087000
    registers:
      - name: CTRL0
        offset: 0x000
        fields:
          - {name: PWRTARGET, offset: 0, width: 8, signed: true}
          - {name: MODE, offset: 8, width: 2}
`

func TestParseAndLookup(t *testing.T) {
	m, err := Parse([]byte(testMap))
	assert.NilError(t, err)

	f, ok := m.Field("MODEM_CF_DEC1")
	assert.Assert(t, ok)
	assert.Equal(t, f.Register.Address(), uint32(0x40086020))
	assert.Equal(t, f.Mask(), uint32(0x3fff<<3))

	_, ok = m.Field("modem_cf_dec0")
	assert.Assert(t, ok, "lookup is case-insensitive")

	r, ok := m.RegisterAt(0x40087000)
	assert.Assert(t, ok)
	assert.Equal(t, r.FullName(), "AGC_CTRL0")

	fields := m.Fields()
	assert.Equal(t, len(fields), 5)
	assert.Equal(t, fields[0].FullName(), "MODEM_CF_DEC0")
	assert.Equal(t, fields[len(fields)-1].FullName(), "AGC_CTRL0_MODE")
}

func TestParseRejectsBadMaps(t *testing.T) {
	tests := map[string]string{
		"overlap": `
blocks:
  - name: A
    base: 0x1000
    registers:
      - name: R
        offset: 0
        fields:
          - {name: X, offset: 0, width: 4}
          - {name: Y, offset: 3, width: 2}
`,
		"too wide": `
blocks:
  - name: A
    base: 0x1000
    registers:
      - name: R
        offset: 0
        fields:
          - {name: X, offset: 30, width: 4}
`,
		"unaligned": `
blocks:
  - name: A
    base: 0x1000
    registers:
      - name: R
        offset: 2
`,
		"shared address": `
blocks:
  - name: A
    base: 0x1000
    registers:
      - {name: R, offset: 4}
  - name: B
    base: 0x1004
    registers:
      - {name: S, offset: 0}
`,
		"bad access": `
blocks:
  - name: A
    base: 0x1000
    registers:
      - name: R
        offset: 0
        fields:
          - {name: X, offset: 0, width: 1, access: RX}
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Assert(t, errors.Is(err, ErrInvalidMap), "got %v", err)
		})
	}
}

func TestEncodeSaturates(t *testing.T) {
	m := MustParse([]byte(testMap))
	dec0, _ := m.Field("MODEM_CF_DEC0")
	target, _ := m.Field("AGC_CTRL0_PWRTARGET")
	status, _ := m.Field("MODEM_CF_STATUS")

	tests := []struct {
		field   *Field
		in      int64
		raw     uint32
		clamped bool
	}{
		{dec0, 5, 5, false},
		{dec0, 9, 7, true},
		{dec0, -1, 0, true},
		{target, -2, 0xfe, false},
		{target, -300, 0x80, true},
		{target, 200, 0x7f, true},
	}
	for _, tt := range tests {
		raw, clamped, err := tt.field.Encode(tt.in)
		assert.NilError(t, err)
		if raw != tt.raw || clamped != tt.clamped {
			t.Errorf("%s.Encode(%d) = %#x,%v want %#x,%v", tt.field.FullName(), tt.in, raw, clamped, tt.raw, tt.clamped)
		}
	}

	_, _, err := status.Encode(1)
	assert.Assert(t, errors.Is(err, ErrReadOnly))
}

func TestComposeAndDecode(t *testing.T) {
	m := MustParse([]byte(testMap))
	dec0, _ := m.Field("MODEM_CF_DEC0")
	dec1, _ := m.Field("MODEM_CF_DEC1")
	target, _ := m.Field("AGC_CTRL0_PWRTARGET")

	words := Compose([]FieldValue{
		{Field: target, Value: -2},
		{Field: dec1, Value: 11},
		{Field: dec0, Value: 2},
	})
	assert.Equal(t, len(words), 2)
	assert.Equal(t, words[0].Address, uint32(0x40086020))
	assert.Equal(t, words[0].Value, uint32(0x80000000|11<<3|2))
	assert.Equal(t, words[0].Mask, dec0.Mask()|dec1.Mask())
	assert.Equal(t, words[1].Value, uint32(0xfe))

	fv := Decode(target.Register, 0x2fe)
	assert.Equal(t, fv[0].Value, int64(-2))
	assert.Equal(t, fv[1].Value, int64(2))
}

func TestSaturateFloat(t *testing.T) {
	assert.Equal(t, Saturate(1.5, 0.0, 1.0), 1.0)
	assert.Equal(t, Saturate(-3, -2, 2), -2)
}
