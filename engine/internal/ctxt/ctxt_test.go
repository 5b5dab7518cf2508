// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ctxt

import (
	"errors"
	"testing"

	"github.com/gviegas/pbs/driver"
	_ "github.com/gviegas/pbs/driver/soft"
)

// failDriver is a driver that cannot be opened.
type failDriver struct{}

func (failDriver) Open() (driver.GPU, error) { return nil, driver.ErrNoDevice }
func (failDriver) Name() string              { return "failing" }
func (failDriver) Close()                    {}

func init() { driver.Register(failDriver{}) }

func TestOpen(t *testing.T) {
	for _, name := range [...]string{"soft", "SOFT", "oF"} {
		drv, gpu, err := Open(name)
		if err != nil {
			t.Fatalf("Open(%q): unexpected error: %v", name, err)
		}
		if drv == nil || drv.Name() != "soft" {
			t.Fatalf("Open(%q): unexpected driver %v", name, drv)
		}
		if gpu == nil {
			t.Fatalf("Open(%q): unexpected nil GPU", name)
		}
		if lim := gpu.Limits(); lim.MaxConstBuffer <= 0 || lim.MaxTexBuffer <= 0 {
			t.Fatalf("Open(%q): unexpected Limits %+v", name, lim)
		}
	}
}

func TestOpenAny(t *testing.T) {
	// The failing driver is skipped.
	drv, _, err := Open("")
	if err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	if drv.Name() == "failing" {
		t.Fatal("Open: unexpected failing driver")
	}
}

func TestOpenFail(t *testing.T) {
	if _, _, err := Open("failing"); !errors.Is(err, driver.ErrNoDevice) {
		t.Fatalf("Open: have %v\nwant %v", err, driver.ErrNoDevice)
	}
	if _, _, err := Open("no such driver"); err != errNoDriver {
		t.Fatalf("Open: have %v\nwant %v", err, errNoDriver)
	}
}
