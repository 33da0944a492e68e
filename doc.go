// Package nodekit is a declarative wiring and lifecycle runtime for
// publish/subscribe robotics nodes.
//
// Components are plain structs. Struct tags mark the fields the runtime
// fills in and a static method list marks the methods it calls:
//
//	type Talker struct {
//		Pub      transport.Publisher `node:"publish:chatter"`
//		Greeting string              `node:"param:greeting"`
//		Log      *slog.Logger        `node:"log"`
//	}
//
//	func (t *Talker) NodeMethods() []component.MethodMarker {
//		return []component.MethodMarker{
//			component.Init("Setup"),
//			component.Repeat("Talk", component.Interval(time.Second)),
//		}
//	}
//
// # Packages
//
//   - component: tag and method marker scanning, cached per type
//   - registry: instances keyed by type and scope, dependency injection
//   - param: parameter values, coercion and synchronization with a Store
//   - repeater: periodic method scheduling with delay or interval policies
//   - watchdog: subscriptions with an optional silence timeout
//   - engine: the Runtime that orders the lifecycle stages
//   - transport: publish/subscribe abstraction, in-process bus and executor
//   - transport/natsnode: NATS-backed transport node
//   - param/kvstore: JetStream KV parameter store
//   - config, logging, metric, errors, natsclient: ambient infrastructure
//
// # Lifecycle
//
// Creating a component allocates it, runs its constructor and binds its
// publishers, loggers and clocks. Start then injects dependencies, fetches
// parameters, registers for remote changes, runs init methods, starts
// repeaters, opens subscriptions and spins the executor, in that order.
// Components created after Start are brought up to the stage already
// reached.
//
// See cmd/nodekit for a runnable talker and listener.
package nodekit
