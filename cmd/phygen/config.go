package main

// this file holds all the code that talks to viper and pflag.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// options are the settings of one phygen invocation. Scalars come from
// flags, then PHYGEN_* environment variables, then phygen.yaml.
type options struct {
	Family  string
	Profile string
	Format  string
	Out     string
	Compile string
	List    bool
	Trace   bool
	Verbose bool

	// Inputs from the config file's "inputs" section, overridden by the
	// request file and then by --set.
	Inputs map[string]interface{}
	Set    map[string]interface{}
	Force  map[string]interface{}

	Args []string
}

func loadOptions(args []string) (*options, error) {
	fs := pflag.NewFlagSet("phygen", pflag.ContinueOnError)
	fs.StringP("family", "f", "", "chip family (xg1, xg12, xg22)")
	fs.StringP("profile", "p", "", "PHY profile, base when empty")
	fs.StringP("format", "o", "yaml", "output format: yaml, json, c or seq")
	fs.StringP("out", "w", "", "write output to this file instead of stdout")
	fs.String("compile", "", "compile a sequencer program instead of calculating a PHY")
	fs.BoolP("list", "l", false, "list families and profiles")
	fs.Bool("trace", false, "log every calculation step")
	fs.BoolP("verbose", "v", false, "debug logging")
	fs.String("config", "", "config file, phygen.yaml in . or $HOME/.config by default")
	set := fs.StringArray("set", nil, "input value as name=value, repeatable")
	force := fs.StringArray("force", nil, "forced value as name=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("PHYGEN")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("phygen")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	o := &options{
		Family:  v.GetString("family"),
		Profile: v.GetString("profile"),
		Format:  v.GetString("format"),
		Out:     v.GetString("out"),
		Compile: v.GetString("compile"),
		List:    v.GetBool("list"),
		Trace:   v.GetBool("trace"),
		Verbose: v.GetBool("verbose"),
		Inputs:  v.GetStringMap("inputs"),
		Args:    fs.Args(),
	}
	var err error
	if o.Set, err = parseAssignments(*set); err != nil {
		return nil, err
	}
	if o.Force, err = parseAssignments(*force); err != nil {
		return nil, err
	}
	return o, nil
}

// parseAssignments reads name=value pairs; values are YAML scalars so
// numbers stay numbers and "868MHz" stays a string.
func parseAssignments(list []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(list))
	for _, kv := range list {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("want name=value, got %q", kv)
		}
		var x interface{}
		if err := yaml.Unmarshal([]byte(value), &x); err != nil || x == nil {
			x = value
		}
		out[name] = x
	}
	return out, nil
}
