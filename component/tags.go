package component

import (
	"fmt"
	"strings"

	"github.com/c360/nodekit/errors"
)

// TagName is the struct tag key read by the scanner.
const TagName = "node"

// TagDirective is one parsed directive of a node tag.
type TagDirective struct {
	Kind  FieldKind
	Value string
}

// ParseNodeTag parses a node struct tag into its directives.
//
// Tag Syntax:
//   - Directives are comma-separated
//   - Key-value directives use a colon: "publish:chatter"
//   - Flags have no colon: "name", "clock", "log", "inject"
//   - Whitespace is trimmed from all values
//
// Example Tags:
//
//	node:"publish:chatter"
//	node:"param:rate"
//	node:"inject:/shared/map"
//	node:"inject"
//	node:"name"
//
// A field must carry exactly one directive; callers report more than one as
// a marker conflict. The tag "-" yields no directives.
func ParseNodeTag(tag string) ([]TagDirective, error) {
	tag = strings.TrimSpace(tag)
	if tag == "-" {
		return nil, nil
	}
	if tag == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty node tag"),
			"NodeTag", "ParseNodeTag", "tag validation",
		)
	}

	var directives []TagDirective
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		d, err := parseDirective(part)
		if err != nil {
			return nil, err
		}
		directives = append(directives, d)
	}

	return directives, nil
}

func parseDirective(part string) (TagDirective, error) {
	key, value, hasValue := strings.Cut(part, ":")
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	case "publish", "param":
		if value == "" {
			return TagDirective{}, errors.WrapInvalid(
				fmt.Errorf("empty value for directive: %s", key),
				"NodeTag", "parseDirective", "value validation",
			)
		}
		if key == "publish" {
			return TagDirective{Kind: FieldPublish, Value: value}, nil
		}
		return TagDirective{Kind: FieldParam, Value: value}, nil

	case "inject":
		return TagDirective{Kind: FieldInject, Value: value}, nil

	case "name", "clock", "log":
		if hasValue {
			return TagDirective{}, errors.WrapInvalid(
				fmt.Errorf("directive %s takes no value", key),
				"NodeTag", "parseDirective", "flag parsing",
			)
		}
		switch key {
		case "name":
			return TagDirective{Kind: FieldName}, nil
		case "clock":
			return TagDirective{Kind: FieldClock}, nil
		default:
			return TagDirective{Kind: FieldLog}, nil
		}

	default:
		return TagDirective{}, errors.WrapInvalid(
			fmt.Errorf("unknown directive: %s", key),
			"NodeTag", "parseDirective", "directive parsing",
		)
	}
}
