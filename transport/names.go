package transport

import (
	"strings"
)

// Names resolves topic names against a namespace and applies remappings.
type Names struct {
	Namespace string
	Remaps    map[string]string
}

// Resolve returns the fully qualified topic name. Remap keys and values are
// resolved the same way before they are compared.
func (n Names) Resolve(topic string) string {
	resolved := ResolveName(n.Namespace, topic)
	for from, to := range n.Remaps {
		if ResolveName(n.Namespace, from) == resolved {
			return ResolveName(n.Namespace, to)
		}
	}
	return resolved
}

// ResolveName makes name absolute. Names starting with "/" are kept, other
// names are placed under namespace.
func ResolveName(namespace, name string) string {
	if strings.HasPrefix(name, "/") {
		return cleanName(name)
	}
	ns := cleanName("/" + strings.Trim(namespace, "/"))
	if ns == "/" {
		return cleanName("/" + name)
	}
	return cleanName(ns + "/" + name)
}

func cleanName(name string) string {
	parts := strings.Split(name, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return "/" + strings.Join(kept, "/")
}

// Subject maps a resolved topic name onto a NATS subject, for example
// "/robot/scan" becomes "robot.scan".
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
