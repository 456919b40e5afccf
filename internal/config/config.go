// Package config reads alimerge defaults from YAML files.
//
// Keys match long flag names, either as written (reference-url) or in snake
// case (reference_url). Nested maps are addressed by dotted flag names.
// Command line flags and environment variables take precedence.
package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/alimerge/core/errors"
)

// FileName is looked up in the working directory.
const FileName = "alimerge.yaml"

// UserPath is the per-user configuration file.
const UserPath = "~/.config/alimerge/config.yaml"

// Paths returns the configuration files consulted in order. Missing files
// are skipped.
func Paths() []string {
	return []string{FileName, UserPath}
}

// Option installs the YAML loader and the default search paths.
func Option() kong.Option {
	return kong.Configuration(Loader, Paths()...)
}

// Loader is a kong.ConfigurationLoader for YAML documents.
func Loader(r io.Reader) (kong.Resolver, error) {
	values, err := Decode(r)
	if err != nil {
		return nil, err
	}

	var f kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		raw, ok := Lookup(values, flag.Name)
		if !ok {
			return nil, nil
		}
		return Scalar(raw)
	}
	return f, nil
}

// Decode parses a YAML mapping. An empty document yields an empty map.
func Decode(r io.Reader) (map[string]any, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding YAML configuration")
	}
	return values, nil
}

// Lookup finds name in values by exact key, snake case key, or dotted path.
func Lookup(values map[string]any, name string) (any, bool) {
	if v, ok := values[name]; ok && v != nil {
		return v, true
	}
	if v, ok := values[strings.ReplaceAll(name, "-", "_")]; ok && v != nil {
		return v, true
	}

	var cur any = values
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			if cur, ok = m[strings.ReplaceAll(part, "-", "_")]; !ok {
				return nil, false
			}
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Scalar renders a YAML value in the form kong parses from the command line.
// Sequences become comma separated lists.
func Scalar(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := Scalar(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", errors.NewValidation("configuration value", fmt.Sprint(v), fmt.Sprintf("unsupported type %T", v))
	}
}
