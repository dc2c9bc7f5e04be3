// Package factory instantiates pluggable gateway modules from configuration.
// A module is selected by its type name and receives its own raw settings,
// which the factory decodes into a typed struct:
//
//	state:
//	  type: sqlite
//	  conf:
//	    path: /var/lib/gems/state.db
//
// State backends, metrics sinks, optimizers and forecasters are all built
// through a Registry.
package factory
