package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/linht/radioconf/phy"
	"gotest.tools/v3/assert"
)

func calculate(t *testing.T) *phy.Result {
	t.Helper()
	res, err := phy.Run(context.Background(), phy.Request{
		Family: "xg1",
		Inputs: map[string]any{
			"base_frequency_hz": 868e6,
			"bitrate":           100e3,
			"modulation_type":   "FSK2",
			"deviation":         50e3,
		},
	}, nil)
	assert.NilError(t, err)
	return res
}

func TestWriteJSON(t *testing.T) {
	res := calculate(t)
	var buf bytes.Buffer
	assert.NilError(t, Write(&buf, JSON, res))

	var back struct {
		Family    string                `json:"family"`
		Registers []phy.RegisterResult `json:"registers"`
	}
	assert.NilError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, back.Family, "xg1")
	assert.DeepEqual(t, back.Registers, res.Registers)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	assert.NilError(t, Write(&buf, YAML, calculate(t)))
	out := buf.String()
	assert.Assert(t, strings.HasPrefix(out, "family: xg1\n"), out)
	assert.Assert(t, strings.Contains(out, "name: MODEM_CF"))
}

func TestWriteC(t *testing.T) {
	res := calculate(t)
	var buf bytes.Buffer
	assert.NilError(t, Write(&buf, C, res))
	out := buf.String()
	assert.Assert(t, strings.Contains(out, "#define PHY_XG1_BASE_WRITE_COUNT"), out)
	assert.Assert(t, strings.Contains(out, "/* MODEM_CF */"), out)
	assert.Equal(t, strings.Count(out, "/* MODEM_")+strings.Count(out, "/* SYNTH_")+
		strings.Count(out, "/* AGC_")+strings.Count(out, "/* RAC_"), len(res.Registers))
}

func TestWriteSeq(t *testing.T) {
	var buf bytes.Buffer
	assert.NilError(t, Write(&buf, Seq, calculate(t)))
	out := buf.String()
	assert.Assert(t, strings.HasPrefix(out, "; base 0 = 0x40080000\n"), out)
	assert.Assert(t, strings.Contains(out, "REGALL"))
	assert.Assert(t, strings.HasSuffix(out, "END\n"), out)
}

func TestFormats(t *testing.T) {
	f, err := ParseFormat("YAML")
	assert.NilError(t, err)
	assert.Equal(t, f, YAML)
	_, err = ParseFormat("xml")
	assert.Assert(t, errors.Is(err, ErrUnknownFormat))
	assert.Assert(t, errors.Is(Write(&bytes.Buffer{}, "xml", &phy.Result{}), ErrUnknownFormat))
	assert.Equal(t, C.Extension(), ".h")
}
