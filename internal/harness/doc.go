// Package harness provides scenario-driven conformance testing for the
// query engine.
//
// A scenario is a YAML file that names a dataset fixture and a list of
// queries to run against it, each with optional expectations on the
// result envelope. The harness loads the dataset into a fresh store,
// executes every step through the real engine, and verifies the
// expectations. Golden snapshots of the full run detect any drift in
// envelope shape or ordering.
//
// # Scenario Format
//
//	name: users-basic
//	description: "equality and disjunction over one collection"
//	dataset: ../datasets/users.yaml
//	steps:
//	  - query: FOR u IN users FILTER u.status == 'active' RETURN u.name
//	    expect:
//	      count: 2
//	      entities: ["Alice", "Carol"]
//	  - query: FOR u IN
//	    expect:
//	      error: PARSE_ERROR
//
// Dataset paths are resolved relative to the scenario file, so a
// scenario directory can be checked out anywhere and still find its
// fixtures.
package harness
