// Package moduleregistry provides the static registration table for the
// built-in module types. Registration is explicit: a module type exists
// in a panel exactly when it is listed here (or registered separately by
// an embedding program).
package moduleregistry

import (
	stderrors "errors"

	pkgerrors "github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/input/clock"
	"github.com/c360/stagelink/input/udpframe"
	"github.com/c360/stagelink/module"
	"github.com/c360/stagelink/output/file"
	"github.com/c360/stagelink/output/udpsend"
	"github.com/c360/stagelink/output/wsbroadcast"
)

// Register registers all built-in module types with the provided registry.
//
// Inputs:
//   - clock (interval / time-of-day events)
//   - udp-frame (UDP datagram frames)
//
// Outputs:
//   - file (JSON lines appender)
//   - udp-send (UDP datagram forwarder)
//   - ws-broadcast (WebSocket event push)
//
// Installation-specific module types belong in separate modules that
// call Register on top of this table.
func Register(registry *module.Registry) error {
	if registry == nil {
		return pkgerrors.WrapFatal(
			stderrors.New("registry cannot be nil"),
			"ModuleRegistry", "Register", "registry validation")
	}

	if err := clock.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ModuleRegistry", "Register", "clock input registration")
	}
	if err := udpframe.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ModuleRegistry", "Register", "udp-frame input registration")
	}

	if err := file.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ModuleRegistry", "Register", "file output registration")
	}
	if err := udpsend.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ModuleRegistry", "Register", "udp-send output registration")
	}
	if err := wsbroadcast.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ModuleRegistry", "Register", "ws-broadcast output registration")
	}

	return nil
}
