// Package module defines the lifecycle contract shared by every pluggable
// stagelink module, the manifest metadata describing module types, and the
// registry that maps type names to factories.
//
// # Contract
//
// Every module instance, input or output, exposes the same surface:
// configuration access (read and wholesale replacement), an advisory lock
// flag, a log sink, and best-effort Start/Stop transitions. Concrete
// behavior is supplied through hooks; the base implementation wraps every
// hook so that a hook error (or panic) is logged at error level and never
// escapes to the caller. The system must stay editable while individual
// modules misbehave, so lifecycle operations always complete from the
// caller's perspective.
//
// # Capability split
//
//   - Input modules produce events. They carry a delivery mode ("trigger"
//     for discrete events, "streaming" for continuous values) and emit
//     through an EventSink, normally the router.
//   - Output modules consume events. HandleEvent inspects the event's mode
//     and dispatches to the trigger or streaming hook.
//
// # State machine
//
// Unstarted -> Started -> Stopped. Start and Stop are idempotent: repeat
// calls are no-ops before the concrete hook ever runs. The lock flag is an
// orthogonal overlay visible to API consumers, not a memory guard.
package module
