package config

import (
	"strings"

	"github.com/c360/nodekit/param"
	"github.com/c360/nodekit/transport"
)

// Args is the command line split by the name:=value convention.
type Args struct {
	Special map[string]string // __name:=value
	Params  []param.Parameter // _name:=value, in order
	Remaps  map[string]string // from:=to
	Rest    []string          // everything else
}

// ParseArgs partitions args. A token is name:=value with a non-empty name;
// two leading underscores mark a special key, one marks a private parameter
// and no underscore a topic remap. Parameter kinds are inferred from the
// value text.
func ParseArgs(args []string) Args {
	out := Args{
		Special: make(map[string]string),
		Remaps:  make(map[string]string),
	}

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, ":=")
		if !ok || name == "" || strings.HasPrefix(arg, "-") {
			out.Rest = append(out.Rest, arg)
			continue
		}

		switch {
		case strings.HasPrefix(name, "__"):
			out.Special[name] = value
		case strings.HasPrefix(name, "_"):
			out.Params = append(out.Params, param.Parameter{
				Name:  strings.TrimPrefix(name, "_"),
				Value: param.InferValue(value),
			})
		default:
			out.Remaps[name] = value
		}
	}
	return out
}

// Names returns the topic resolver for namespace with the parsed remaps.
func (a Args) Names(namespace string) transport.Names {
	return transport.Names{Namespace: namespace, Remaps: a.Remaps}
}
