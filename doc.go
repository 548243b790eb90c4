// Package reconciler keeps analyses of an editable text buffer up to date.
// It debounces edits, then runs an ordered set of strategies over the buffer
// on a single background worker.
//
// # Lifecycle
//
// Create a Reconciler, register strategies, and install it on a buffer:
//
//	r := reconciler.New(reconciler.WithDelay(300 * time.Millisecond))
//	r.AddStrategy(syntax)
//	r.AddStrategy(outline)
//
//	doc := reconciler.NewDocument(src)
//	if err := r.Install(doc, nil); err != nil { ... }
//	defer r.Uninstall()
//
// Install schedules a first cycle without delay. After that every edit to the
// buffer reschedules the cycle: the pending one is dropped, a cycle in flight
// is cancelled, and a new one fires once edits have been quiet for the delay.
// Cycles never overlap.
//
// # Strategies
//
// A [Strategy] receives the buffer through SetBuffer and analyses it in
// Reconcile. Optional capabilities are detected by interface assertion:
//
//   - [ExtendedStrategy] runs InitialReconcile on the first cycle after a
//     buffer is bound, and Reconcile from then on.
//   - [InputAwareStrategy] is bound to the buffer's [Input] when one is
//     available.
//   - A strategy that implements sync.Locker is locked through it while it
//     runs, so reconcilers sharing the strategy exclude each other.
//
// The context passed to a pass is cancelled when the cycle is superseded.
// Strategies may poll it; the dispatcher also checks it between strategies.
//
// # Gates and visibility
//
// A [Gate] decides per strategy whether it runs in a cycle. [WhenVisible]
// skips strategies while the host is hidden; see [Reconciler.SetHostVisible].
//
// Concrete strategies built on tree-sitter, SQLite and Risor live under
// internal/strategies; cmd/reconciler drives them from the command line.
package reconciler
