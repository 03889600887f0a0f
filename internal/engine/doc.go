// Package engine drives a validation run.
//
// ARCHITECTURE:
//
// A run has three phases:
//  1. Scan every module (concurrently, bounded by WithJobs) to learn which
//     plugins it exposes.
//  2. Detect plugin ids exposed by more than one module.
//  3. Run the selected tests, modules concurrently, and within a module
//     library tests first followed by each plugin's tests in registry order.
//
// Tests against one module never overlap. Each test goes through an
// Executor: worker.Runner by default, or InProcess when the user asked for
// in-process debugging.
//
// Outcomes are reported for every selected test. A setup error records one
// SetupError outcome and marks the rest of that plugin's tests Skipped, so
// the outcome count per plugin always matches the selection.
//
// Plugin misbehaviour never aborts a run. Run only returns an error for
// harness failures (no modules, unmatched plugin id, unwritable trace
// directory).
package engine
