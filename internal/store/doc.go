// Package store keeps a SQLite history of validation runs.
//
// Each saved run is written in one transaction:
//   - runs: one row per run with its selection and exit class
//   - modules: the modules of the run, in report order
//   - plugins: the plugins of each module
//   - outcomes: every outcome, keyed by module, plugin (-1 for library
//     tests) and position
//
// ReadRun rebuilds the exact report that was saved, minus in-memory traces.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks held by a concurrent clapval
//   - foreign_keys=ON: Deleting a run removes its rows
package store
