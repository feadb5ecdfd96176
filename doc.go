// Package stagelink provides a control panel runtime for interactive
// installations, routing events from input modules to output modules
// through operator-defined interactions.
//
// # Philosophy: Modules and Interactions
//
// An installation is described as a set of interactions. Each
// interaction wires one input module instance (clock, UDP frames, a
// sensor) to one output module instance (file log, UDP fixture, a
// WebSocket projection surface). Modules are self-describing: a
// manifest declares the type, capability, and configurable fields, and
// the panel UI is generated from it.
//
// StageLink MUST NOT contain:
//   - Installation-specific module types (a particular venue's lighting
//     rig, a specific sensor product)
//   - Show content or media assets
//
// Installation-specific modules belong in separate modules that
// register themselves on top of the built-in table.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│         Panel Service               │  HTTP API, WebSocket
//	│  (lock, mutate, broadcast, unlock)  │  notifications
//	└─────────────────────────────────────┘
//	           ↓ orchestrates
//	┌─────────────────────────────────────┐
//	│   Registry · Store · Loader         │  Module types, persisted
//	│                                     │  interactions, instances
//	└─────────────────────────────────────┘
//	           ↓ derives
//	┌─────────────────────────────────────┐
//	│            Router                   │  Live connections,
//	│  (rebuild, add, remove, route)      │  event delivery
//	└─────────────────────────────────────┘
//
// The router's connection list is derived state: it is rebuilt from the
// persisted interaction list plus the live instance set whenever either
// changes, and malformed or unresolvable entries degrade to "no
// connection" rather than errors. The panel stays editable while a show
// is running.
//
// # Packages
//
//   - module: the lifecycle contract (manifest, config, modes, hooks)
//     and the explicit type registry
//   - interaction: persisted wiring definitions, the JSON/KV store, and
//     the instance loader
//   - router: connection resolution and event delivery
//   - panel: the orchestrating HTTP/WebSocket service
//   - input/..., output/...: built-in module types
//   - natsclient, metric, errors, config: shared infrastructure
package stagelink
