// Package emit serializes calculated PHY configurations.
package emit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/linht/radioconf/phy"
	"github.com/linht/radioconf/seqacc"
	"gopkg.in/yaml.v3"
)

// Format names an output encoding.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
	C    Format = "c"
	Seq  Format = "seq"
)

var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists every supported format.
func Formats() []Format {
	return []Format{YAML, JSON, C, Seq}
}

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if strings.EqualFold(string(f), s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case YAML:
		return "application/yaml"
	}
	return "text/plain; charset=utf-8"
}

// Extension is the file suffix used for f.
func (f Format) Extension() string {
	switch f {
	case C:
		return ".h"
	case Seq:
		return ".seq"
	}
	return "." + string(f)
}

// Write encodes res to w.
func Write(w io.Writer, f Format, res *phy.Result) error {
	switch f {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case C:
		return writeC(w, res)
	case Seq:
		return writeSeq(w, res)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

var cTemplate = template.Must(template.New("c").Funcs(template.FuncMap{
	"hex":   func(v uint32) string { return fmt.Sprintf("0x%08Xu", v) },
	"upper": strings.ToUpper,
}).Parse(`/* {{.Ident}}: {{.Res.Family}} PHY, profile {{.Res.Profile}}{{if .Res.ID}}, run {{.Res.ID}}{{end}} */
#ifndef {{upper .Ident}}_H
#define {{upper .Ident}}_H

#include <stdint.h>
{{range .Res.Warnings}}
/* warning: {{.}} */{{end}}

#define {{upper .Ident}}_WRITE_COUNT {{len .Res.Registers}}u

static const uint32_t {{.Ident}}_writes[{{len .Res.Registers}}][2] = {
{{- range .Res.Registers}}
  { {{hex .Address}}, {{hex .Value}} }, /* {{.Name}} */
{{- end}}
};

#endif
`))

// writeC emits a header with an address/value table of the composed writes.
func writeC(w io.Writer, res *phy.Result) error {
	return cTemplate.Execute(w, struct {
		Ident string
		Res   *phy.Result
	}{ident(res), res})
}

func ident(res *phy.Result) string {
	s := "phy_" + res.Family + "_" + res.Profile
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
}

// writeSeq packs the register writes into a sequencer program and prints
// its base table and listing.
func writeSeq(w io.Writer, res *phy.Result) error {
	p, err := seqacc.FromWrites(res.Writes, nil)
	if err != nil {
		return err
	}
	for i, b := range p.Bases {
		if _, err := fmt.Fprintf(w, "; base %d = %#08x\n", i, b); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, p.Listing())
	return err
}
