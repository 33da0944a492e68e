// Package engine drives component types through wiring and execution.
//
// # Overview
//
// A Runtime owns every piece of runtime state: the instance registry, the
// parameter synchronizer, the repeaters, the subscription bindings and the
// transport node. Nothing is package-global, so several runtimes can share a
// process.
//
// # Lifecycle
//
// Components are registered with Create before Start. Creation wires publish
// slots, parameter bindings and name, clock and log slots immediately, and
// records the component's init, repeat and subscribe methods. Start then
// runs the remaining stages exactly once, in order:
//
//	inject      resolve inject slots, creating dependencies on demand
//	parameters  await remote values, publish local defaults for missing ones
//	callback    install the remote change callback
//	init        call init methods in registration order
//	repeaters   start one goroutine per repeat method
//	subscribe   bind subscribe methods to their topics
//	spin        hand deliveries to the executor
//
// A component created after Start is brought through every stage that has
// already passed before Create returns.
//
// # Shutdown
//
// Shutdown stops the executor, then the repeaters and subscriptions, closes
// the node and joins every goroutine the runtime started, bounded by the
// caller's context.
//
// # Usage
//
//	rt, err := engine.New(engine.WithNode(node), engine.WithStore(store))
//	if err != nil {
//	    return err
//	}
//	if _, err := engine.Create[Talker](rt, ""); err != nil {
//	    return err
//	}
//	return rt.Run(ctx)
package engine
