// Package param keeps parameter-bound component fields in step with a
// remote parameter store.
//
// A Synchronizer collects one Binding per `node:"param:<name>"` field. Add
// issues the remote fetch immediately and Resolve later awaits each fetch in
// registration order:
//
//   - no remote value: the field's current value is encoded and written back
//     to the store, so the store learns the component's default
//   - a remote value: it is coerced into the field's type
//
// Coercion follows the declared remote kind. Strings parse into booleans,
// integers (via float, truncating) and floats; doubles truncate into
// integers; integers widen into floats; any scalar renders into a string
// field. Slices, arrays, maps and structs use YAML text. A value that fails
// to coerce is logged as an errors.CoercionError and the field keeps its
// previous value.
//
// Remote changes reach OnChange, which Register installs as the store's
// single change callback. Unknown names are logged and ignored. When two
// bindings share a name the later one receives changes.
//
// MemoryStore is an in-process Store for tests and standalone runs. The
// kvstore subpackage provides a JetStream key-value implementation.
package param
