// Package testutil provides helpers shared by NodeKit tests.
//
// Recorder captures callback invocations with their arrival times so tests
// can assert on counts and spacing without hand-rolled mutex bookkeeping:
//
//	var rec testutil.Recorder
//	b := watchdog.New("/scan", msgType, rec.Handle, watchdog.WithTimeout(time.Second))
//	...
//	require.True(t, rec.WaitFor(2, 3*time.Second))
//	values, times := rec.Snapshot()
//
// RecordingPublisher is an in-memory transport.Publisher that keeps every
// message it is given.
//
// WaitClosed fails the test when a done channel stays open past a deadline.
package testutil
