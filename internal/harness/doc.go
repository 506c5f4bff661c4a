// Package harness runs scripted scenarios against an id map.
//
// A scenario names a directory of migration definitions, the migration under
// test, and a list of store operations. Each run gets a fresh in-memory
// SQLite database and a fixed clock, so the trace it produces is the same on
// every run and can be compared with a golden file.
//
// # Scenario Format
//
//	name: partial_lookup
//	description: "A partial source key matches every translation"
//	definitions: ../definitions
//	migration: d7_node_translation:article
//	setup:
//	  - op: save
//	    source: {language: en, nid: 1}
//	    destination: {nid: 101, langcode: en}
//	flow:
//	  - op: lookup
//	    source: {nid: 1}
//	    expect:
//	      result: [{nid: 101, langcode: en}]
//	assertions:
//	  - type: final_state
//	    where: {language: en, nid: 1}
//	    expect: {status: imported}
//
// A source or destination given as a list is passed positionally; a map is
// passed by field name.
//
// # Operations
//
//   - ensure, destroy
//   - save, message, clear_messages
//   - set_update, prepare_update
//   - delete, delete_destination
//   - row, row_by_destination, lookup, lookup_source, needs_update
//   - rows, messages, count, highest_id
//
// # Assertion Types
//
//   - event_contains: a store event with matching args was traced
//   - event_order: the named events were traced in this order
//   - event_count: a store event was traced exactly N times
//   - final_state: the map row of a source key matches after the flow
//   - counter: a store counter has the given value after the flow
package harness
