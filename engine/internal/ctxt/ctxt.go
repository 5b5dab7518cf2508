// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package ctxt opens the GPU driver used in the engine.
package ctxt

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gviegas/pbs/driver"
)

var errNoDriver = errors.New("ctxt: driver not found")

// Open attempts to open any registered driver whose name
// contains the name string. It is case insensitive.
// If name is the empty string, then all registered
// drivers are considered, in registration order.
// The error of the last driver that failed to open is
// returned if none succeeds.
func Open(name string) (driver.Driver, driver.GPU, error) {
	drivers := driver.Drivers()
	err := errNoDriver
	name = strings.ToLower(name)
	for i := range drivers {
		if !strings.Contains(strings.ToLower(drivers[i].Name()), name) {
			continue
		}
		var u driver.GPU
		if u, err = drivers[i].Open(); err != nil {
			slog.Warn("driver failed to open", "name", drivers[i].Name(), "err", err)
			continue
		}
		slog.Info("driver opened", "name", drivers[i].Name())
		return drivers[i], u, nil
	}
	return nil, nil, err
}
