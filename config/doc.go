// Package config loads NodeKit process configuration.
//
// Configuration comes from three sources, applied in order:
//
//  1. Defaults
//  2. JSON file layers added with Loader.AddLayer, later layers winning
//  3. NODEKIT_* environment variables
//
// Command line tokens of the form name:=value are parsed separately by
// ParseArgs. Special keys (__node, __ns, __log_level) override the loaded
// Config through Config.Apply; private parameters (_name:=value) seed the
// parameter store; everything else is a topic remap.
//
// Example file:
//
//	{
//	  "node": {"name": "talker", "namespace": "/demo", "shutdown_timeout": "3s"},
//	  "transport": {"kind": "nats", "nats": {"urls": ["nats://localhost:4222"]}},
//	  "parameters": {"store": "kv", "bucket": "nodekit_params"},
//	  "log": {"level": "debug", "format": "text", "rosout": true},
//	  "metrics": {"enabled": true, "addr": ":9090"}
//	}
package config
