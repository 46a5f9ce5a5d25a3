// Package search fans a query out to the configured engines and aggregates
// their answers.
//
// A Registry holds the engine descriptors. For each query the Aggregator
// selects engines, the Scheduler starts one Dispatcher unit per engine, and
// every unit's Outcome is ingested into a results.Container in completion
// order. The container is finalized when all engines reported or when the
// global deadline passes.
package search
