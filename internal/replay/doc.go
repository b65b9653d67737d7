// Package replay runs kvstore replay scripts.
//
// This package is internal to kvstore and backs the `kvstore run` command.
// A [Runner] builds a fresh string-keyed store, registers the script's
// subscribers, executes each step and writes a line for every operation
// and every notification it observes.
//
// The main components are:
//
//   - [Runner]: Executes a parsed config.Config against a store
//   - [Report]: Counts of what happened during a run
//   - [WriteMetrics]: Prints gathered prometheus metrics as plain text
package replay
