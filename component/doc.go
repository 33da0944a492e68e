// Package component describes how NodeKit components declare their wiring.
//
// A component is a plain struct. Fields are wired through node struct tags
// and methods through the MethodDescriber interface:
//
//	type Talker struct {
//	    Rate    int                 `node:"param:rate"`
//	    Chatter transport.Publisher `node:"publish:chatter"`
//	    Clock   *component.Clock    `node:"clock"`
//	    Name    string              `node:"name"`
//	    Map     *MapServer          `node:"inject:/shared/map"`
//	    Log     *slog.Logger        `node:"log"`
//	}
//
//	func (t *Talker) NodeMethods() []component.MethodMarker {
//	    return []component.MethodMarker{
//	        component.Init("Setup"),
//	        component.Repeat("Tick", component.Interval(100*time.Millisecond)),
//	        component.Subscribe("OnScan", "scan", component.Timeout(time.Second)),
//	    }
//	}
//
// Scan turns a type into an immutable Descriptor. Malformed declarations
// surface as errors.CreationError:
//
//   - more than one directive on a field, or a method listed twice
//   - an unexported tagged field
//   - a slot whose Go type does not match its directive
//   - a subscribe method without exactly one parameter
//   - a repeat marker with both Delay and Interval
//
// Components that need defaults implement Constructor; Construct runs right
// after allocation and before any wiring.
package component
