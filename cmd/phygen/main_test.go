package main

import (
	"bytes"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	assert.NilError(t, err)
	assert.NilError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestRunFromFileAndFlags(t *testing.T) {
	chdir(t, t.TempDir())
	req := `
family: xg1
inputs:
  base_frequency_hz: 868MHz
  bitrate: 100000
  modulation_type: FSK2
`
	assert.NilError(t, os.WriteFile("fsk.yaml", []byte(req), 0644))

	var stdout, stderr bytes.Buffer
	err := run([]string{"-o", "c", "--set", "deviation=50000", "fsk.yaml"}, &stdout, &stderr)
	assert.NilError(t, err, stderr.String())
	assert.Assert(t, strings.Contains(stdout.String(), "PHY_XG1_BASE_WRITE_COUNT"), stdout.String())
}

func TestRunConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	cfg := `
family: xg12
profile: ook
format: json
inputs:
  base_frequency_hz: 433.92e6
  bitrate: 4800
`
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "phygen.yaml"), []byte(cfg), 0644))

	var stdout, stderr bytes.Buffer
	assert.NilError(t, run(nil, &stdout, &stderr), stderr.String())
	assert.Assert(t, strings.Contains(stdout.String(), `"profile": "ook"`), stdout.String())
}

func TestCompileFlag(t *testing.T) {
	chdir(t, t.TempDir())
	assert.NilError(t, os.WriteFile("seq.yaml", []byte("- SET: {REG: RAC_BANDCTRL, MASK: 2}\n- END\n"), 0644))

	var stdout bytes.Buffer
	assert.NilError(t, run([]string{"--compile", "seq.yaml", "-f", "xg22"}, &stdout, &bytes.Buffer{}))
	assert.Assert(t, strings.HasPrefix(stdout.String(), "; base 0 = 0xa8020000\n"), stdout.String())
	assert.Assert(t, strings.Contains(stdout.String(), "END"))
}

func TestRunErrors(t *testing.T) {
	chdir(t, t.TempDir())
	tests := [][]string{
		{"--set", "bitrate"},
		{"-o", "xml", "-f", "xg1"},
		{},
		{"a.yaml", "b.yaml"},
	}
	for _, args := range tests {
		if err := run(args, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"bitrate=4800", "base_frequency_hz=868MHz", "syncword_0=0xF68D"})
	assert.NilError(t, err)
	assert.DeepEqual(t, got, map[string]interface{}{
		"bitrate":           4800,
		"base_frequency_hz": "868MHz",
		"syncword_0":        0xF68D,
	})
}

func TestCommandDoc(t *testing.T) {
	f, err := parser.ParseFile(token.NewFileSet(), "main.go", nil, parser.PackageClauseOnly|parser.ParseComments)
	assert.NilError(t, err)
	assert.Assert(t, f.Doc != nil)
	assert.Assert(t, strings.HasPrefix(f.Doc.Text(), "Phygen calculates"), f.Doc.Text())
}
