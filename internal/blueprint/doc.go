// Package blueprint defines the declarative phase graph that drives a
// pipeline run.
//
// A [Blueprint] lists phases in pipeline stage order; each [Phase] maps
// to a lifecycle stage, carries a failure [Policy], and declares the
// [Subtask] list to execute. Sub-tasks run concurrently by default, or
// strictly in order when the phase sets Sequential.
//
// Blueprints load from YAML:
//
//	name: nightly
//	version: "1"
//	phases:
//	  - name: analysis
//	    policy: all_must_succeed
//	    timeout: 5m
//	    subtasks:
//	      - name: security_scan
//	      - name: complexity_profile
//	        params:
//	          delay: 200ms
//
// [Default] provides the stock five-phase blueprint wired to the builtin
// capabilities.
//
// Validation happens at load time through [Blueprint.Validate]; a
// blueprint that references an unknown policy, skips the stage order, or
// declares an empty phase never reaches an engine.
package blueprint
