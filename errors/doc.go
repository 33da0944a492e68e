// Package errors provides standardized error handling patterns for NodeKit.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, not retryable) and Fatal (stop processing). Classification lets
// the runtime decide between aborting startup, logging and continuing, or
// retrying a collaborator call.
//
// # Wiring Errors
//
// The runtime raises four error types while wiring and driving components:
//
//   - CreationError: a component could not be constructed or a marker is
//     malformed. Fatal to startup and returned from Create and Start.
//   - CoercionError: a remote parameter value does not fit the bound field.
//     Logged; the field keeps its previous value.
//   - InvocationError: a user method bound to init, repeat or subscribe
//     returned an error or panicked. Logged; the loop continues.
//   - UnknownParameterError: a remote change names no known binding. Logged
//     and ignored.
//
// All of them implement Unwrap and work with errors.Is and errors.As.
//
// # Error Wrapping Pattern
//
// Wrapping follows the format "component.method: action failed: cause":
//
//	if err := store.SetParameters(ctx, params); err != nil {
//	    return errors.WrapTransient(err, "Synchronizer", "Resolve", "publish default")
//	}
//
// # Classification
//
//	switch errors.Classify(err) {
//	case errors.ErrorFatal:
//	    // abort startup
//	case errors.ErrorInvalid:
//	    // log, keep going
//	case errors.ErrorTransient:
//	    // retry with backoff
//	}
package errors
