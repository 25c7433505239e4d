// Phygen calculates a radio PHY configuration from the command line.
//
// Usage:
//
//	phygen [flags] [request.yaml]
//
// The request file holds family, profile, inputs and forced values in the
// same shape the HTTP API accepts. Flags and --set override the file:
//
//	phygen -f xg1 --set base_frequency_hz=868MHz --set bitrate=100000 \
//	    --set modulation_type=FSK2 --set deviation=50000 -o c
//
// With --compile, phygen assembles a sequencer program instead and prints
// its listing.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/linht/radioconf/calc"
	"github.com/linht/radioconf/emit"
	"github.com/linht/radioconf/phy"
	"github.com/linht/radioconf/seqacc"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "phygen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	o, err := loadOptions(args)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if o.Verbose || o.Trace {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	out := stdout
	if o.Out != "" {
		f, err := os.Create(o.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch {
	case o.List:
		return listFamilies(out)
	case o.Compile != "":
		return compile(out, o)
	}

	req, err := buildRequest(o)
	if err != nil {
		return err
	}
	req.Log = log.With("family", req.Family, "profile", req.Profile)

	format, err := emit.ParseFormat(o.Format)
	if err != nil {
		return err
	}

	var observe func(calc.Step)
	if o.Trace {
		observe = func(s calc.Step) {
			attrs := []any{"index", s.Index, "calc", s.Name, "took", s.Duration}
			for _, w := range s.Writes {
				attrs = append(attrs, w.Name, w.Value)
			}
			log.Debug("step", attrs...)
		}
	}
	res, err := phy.Run(context.Background(), req, observe)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	return emit.Write(out, format, res)
}

// buildRequest layers config inputs, the request file and flags.
func buildRequest(o *options) (phy.Request, error) {
	req := phy.Request{Inputs: map[string]any{}, Forced: map[string]any{}}
	for k, v := range o.Inputs {
		req.Inputs[k] = v
	}

	if len(o.Args) > 1 {
		return req, fmt.Errorf("expected one request file, got %d", len(o.Args))
	}
	if len(o.Args) == 1 {
		data, err := os.ReadFile(o.Args[0])
		if err != nil {
			return req, err
		}
		var file phy.Request
		if err := yaml.Unmarshal(data, &file); err != nil {
			return req, fmt.Errorf("%s: %w", o.Args[0], err)
		}
		req.Family, req.Profile = file.Family, file.Profile
		for k, v := range file.Inputs {
			req.Inputs[k] = v
		}
		for k, v := range file.Forced {
			req.Forced[k] = v
		}
	}

	if o.Family != "" {
		req.Family = o.Family
	}
	if o.Profile != "" {
		req.Profile = o.Profile
	}
	for k, v := range o.Set {
		req.Inputs[k] = v
	}
	for k, v := range o.Force {
		req.Forced[k] = v
	}
	if req.Family == "" {
		return req, fmt.Errorf("no family given, use --family or a request file")
	}
	return req, nil
}

func listFamilies(w io.Writer) error {
	for _, f := range phy.Families() {
		var names []string
		for _, p := range phy.Profiles(f) {
			names = append(names, p.Name)
		}
		if _, err := fmt.Fprintf(w, "%-6s xtal %-10s %s (profiles: %s)\n",
			f.Name, calc.FormatHz(f.XtalHz), f.Desc, strings.Join(names, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func compile(w io.Writer, o *options) error {
	src, err := os.ReadFile(o.Compile)
	if err != nil {
		return err
	}
	c := &seqacc.Compiler{}
	if o.Family != "" {
		f, ok := phy.Lookup(o.Family)
		if !ok {
			return fmt.Errorf("%w: %q", phy.ErrUnknownFamily, o.Family)
		}
		c.Map = f.Registers
	}
	prog, err := c.Compile(src)
	if err != nil {
		return fmt.Errorf("%s: %w", o.Compile, err)
	}
	for i, b := range prog.Bases {
		fmt.Fprintf(w, "; base %d = %#08x\n", i, b)
	}
	_, err = io.WriteString(w, prog.Listing())
	return err
}
