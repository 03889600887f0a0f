// Package harness holds the validator's test bodies and runs one test at a
// time against a plugin module.
//
// A Suite pairs the static test registry with the code implementing each
// test. Execute runs a single (module, plugin, test) request on the calling
// goroutine, which it locks to its OS thread so that the thread serves as
// the plugin's main thread. The same entry point backs both execution
// modes:
//
//   - in-process, where the engine calls Execute directly and a native
//     crash takes the whole run down;
//   - out-of-process, where a worker process decodes a Request from its
//     control pipe, calls Execute, and sends the Outcome back.
//
// Go panics raised by a test body (including panics re-raised from the
// audio thread) are recovered and reported as crashed outcomes.
//
// # Test Bodies
//
// Library tests receive the module path only. Plugin tests receive the
// module path and a plugin id and create fresh plugin instances through
// the host shim as needed:
//
//	inst, err := env.initInstance()
//	if err != nil {
//	    return outcomeFor(err)
//	}
//
// Contract violations detected by the host shim surface as errors and are
// turned into failed outcomes carrying the violated rule.
package harness
