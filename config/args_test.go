package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/nodekit/param"
)

func TestParseArgs(t *testing.T) {
	args := ParseArgs([]string{
		"--config", "node.json",
		"__node:=talker",
		"_rate:=10",
		"_gain:=0.5",
		"_verbose:=true",
		"_frame:=base_link",
		"chatter:=/demo/chatter",
		":=orphan",
		"-v",
	})

	assert.Equal(t, map[string]string{"__node": "talker"}, args.Special)
	assert.Equal(t, []param.Parameter{
		{Name: "rate", Value: param.IntValue(10)},
		{Name: "gain", Value: param.DoubleValue(0.5)},
		{Name: "verbose", Value: param.BoolValue(true)},
		{Name: "frame", Value: param.StringValue("base_link")},
	}, args.Params)
	assert.Equal(t, map[string]string{"chatter": "/demo/chatter"}, args.Remaps)
	assert.Equal(t, []string{"--config", "node.json", ":=orphan", "-v"}, args.Rest)
}

func TestArgsNames(t *testing.T) {
	args := ParseArgs([]string{"chatter:=talk"})
	names := args.Names("/robot")

	assert.Equal(t, "/robot/talk", names.Resolve("chatter"))
	assert.Equal(t, "/robot/scan", names.Resolve("scan"))
}
