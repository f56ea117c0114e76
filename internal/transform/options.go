package transform

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Options are the key=value arguments handed unchanged to every Process call.
// Values stay strings; transforms coerce what they need.
type Options map[string]string

// ParseOptions collects key=value arguments. Each argument is split on its
// first '='; arguments without one are ignored.
func ParseOptions(args []string) Options {
	opts := Options{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			continue
		}
		opts[k] = v
	}
	return opts
}

// Merge returns a new Options holding o overlaid with over.
func (o Options) Merge(over Options) Options {
	out := make(Options, len(o)+len(over))
	maps.Copy(out, o)
	maps.Copy(out, over)
	return out
}

func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("option %s=%q: %w", key, v, err)
	}
	return n, nil
}

func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("option %s=%q: %w", key, v, err)
	}
	return b, nil
}

// Ints parses a comma separated list such as "0,2". A missing key yields
// (nil, false, nil).
func (o Options) Ints(key string) ([]int, bool, error) {
	v, ok := o[key]
	if !ok {
		return nil, false, nil
	}
	var out []int
	for _, f := range strings.Split(v, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, true, fmt.Errorf("option %s=%q: %w", key, v, err)
		}
		out = append(out, n)
	}
	return out, true, nil
}

// Pairs renders o as sorted key=value strings.
func (o Options) Pairs() []string {
	out := make([]string, 0, len(o))
	for k, v := range o {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}
