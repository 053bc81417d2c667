package passes

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Factory builds a pass for one pipeline run.
type Factory func(opts Options) Pass

// Info describes a registered pass.
type Info struct {
	Name        string
	Description string
	New         Factory
}

var registry = make(map[string]Info)

// Register makes a pass available to pipelines under name.
func Register(name, description string, factory Factory) {
	if _, dup := registry[name]; dup {
		panic("passes: duplicate registration of " + name)
	}
	registry[name] = Info{Name: name, Description: description, New: factory}
}

// Lookup returns the registration for name.
func Lookup(name string) (Info, bool) {
	info, ok := registry[name]
	return info, ok
}

// Registered lists every registered pass sorted by name.
func Registered() []Info {
	out := make([]Info, 0, len(registry))
	for _, info := range registry {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParsePipeline builds a manager from a comma separated list of pass names.
func ParsePipeline(list string, opts Options) (*Manager, error) {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return NewPipeline(names, opts)
}

// NewPipeline builds a manager running the named passes in order.
func NewPipeline(names []string, opts Options) (*Manager, error) {
	m := NewManager(opts)
	for _, name := range names {
		info, ok := Lookup(name)
		if !ok {
			return nil, errors.Errorf("unknown pass %q", name)
		}
		m.Add(info.New(opts))
	}
	return m, nil
}
