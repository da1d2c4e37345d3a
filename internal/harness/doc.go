// Package harness runs YAML scenarios against a real Stack.
//
// A scenario is a list of stack operations with expected outcomes, followed
// by assertions over the execution trace and the final committed state.
//
// # Scenario Format
//
//	name: widget_lifecycle
//	description: "What this scenario validates"
//	config:
//	  merge_policy: object     # optional overrides
//	  delete_batch_size: 2
//	steps:
//	  - op: insert
//	    as: a                  # label for later steps
//	    kind: Widget
//	    attrs: { name: bolt, qty: 1 }
//	  - op: find
//	    kind: Widget
//	    match: "qty > 0"       # expr-lang expression
//	    sort: ["qty desc"]
//	    expect:
//	      ids: [a]
//	  - op: update
//	    ref: a
//	    in: main               # default: background
//	    attrs: { qty: 2 }
//	    fail: true             # the unit of work returns an error
//	    expect:
//	      outcome: work_error
//	assertions:
//	  - type: final_state
//	    kind: Widget
//	    where: { name: bolt }
//	    expect: { qty: 1 }
//
// # Operations
//
//   - insert, update: a unit of work saved with SaveInBackground, or
//     SaveInMainContext when in is "main"
//   - edit: an unsaved edit in the main context
//   - save, rollback: commit or discard the main context's pending changes
//   - delete: Stack.Delete on the labeled instance
//   - delete_main: Stack.DeleteInMainContext
//   - delete_all: Stack.DeleteAll, recording how many were deleted
//   - find, count: a fetch on the main lane
//
// # Assertion Types
//
//   - trace_contains: Verifies an op appears in the trace, optionally on a ref
//   - trace_order: Verifies ops appear in specified order
//   - trace_count: Verifies an op appears exactly N times
//   - final_state: Fetches committed entities and verifies count or values
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with sequential entity
// IDs (id-0001, id-0002, ...), so traces are identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
