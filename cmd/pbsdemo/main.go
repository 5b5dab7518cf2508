// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Pbsdemo streams synthetic drawables through an
// engine.Streamer and reports per-frame statistics.
//
// Usage:
//
//	pbsdemo [-driver soft|gl] [-config file.toml] [-frames N] [-objects N] [-metrics addr] [-v]
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gviegas/pbs/driver"
	_ "github.com/gviegas/pbs/driver/gl"
	_ "github.com/gviegas/pbs/driver/soft"
	"github.com/gviegas/pbs/engine"
)

var (
	drvName     = flag.String("driver", "soft", "driver to use (soft or gl)")
	cfgPath     = flag.String("config", "", "TOML configuration file")
	frames      = flag.Int("frames", 60, "number of frames to stream")
	objects     = flag.Int("objects", 2000, "number of drawables per pass")
	metricsAddr = flag.String("metrics", "", "serve Prometheus metrics at this address")
	verbose     = flag.Bool("v", false, "enable debug logging")
)

func init() {
	// GL contexts are tied to the thread that made them
	// current.
	runtime.LockOSThread()
}

func main() {
	flag.Parse()
	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	if err := run(log); err != nil {
		log.Error("pbsdemo failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := engine.DefaultConfig()
	if *cfgPath != "" {
		f, err := os.Open(*cfgPath)
		if err != nil {
			return err
		}
		cfg, err = engine.LoadConfig(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	cfg.Logger = log

	var win *glfw.Window
	if strings.EqualFold(*drvName, "gl") {
		w, err := openWindow()
		if err != nil {
			return err
		}
		defer glfw.Terminate()
		defer w.Destroy()
		win = w
	}

	drv, gpu, err := engine.OpenDriver(*drvName)
	if err != nil {
		return fmt.Errorf("opening driver %q: %w", *drvName, err)
	}
	defer drv.Close()

	s, err := engine.New(gpu, nil, cfg)
	if err != nil {
		return err
	}
	defer s.Destroy()

	reg := prometheus.NewRegistry()
	reg.MustRegister(s.Collectors()...)
	if *metricsAddr != "" {
		go func() {
			h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
			if err := http.ListenAndServe(*metricsAddr, h); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	sc := newScene(*objects)
	start := time.Now()
	var draws int
	for i := 0; i < *frames; i++ {
		if win != nil && win.ShouldClose() {
			break
		}
		t := time.Now()
		n, err := sc.frame(s, gpu, i, log)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		draws += n
		st := s.Stats()
		log.Debug("frame",
			"n", i,
			"draws", st.Draws,
			"const_buffers", st.ConstBuffers,
			"tex_buffers", st.TexBuffers,
			"programs", st.Programs,
			"time", time.Since(t))
		if win != nil {
			win.SwapBuffers()
			glfw.PollEvents()
		}
	}
	st := s.Stats()
	log.Info("done",
		"frames", *frames,
		"draws", draws,
		"elapsed", time.Since(start),
		"const_buffers", st.ConstBuffers,
		"tex_buffers", st.TexBuffers,
		"pass_buffers", st.PassBuffers,
		"material_buffers", st.MaterialBuffers,
		"programs", st.Programs)
	return nil
}

// openWindow creates a hidden window with a current
// OpenGL 4.3 core context.
func openWindow() (*glfw.Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	w, err := glfw.CreateWindow(640, 480, "pbsdemo", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating window: %w", err)
	}
	w.MakeContextCurrent()
	return w, nil
}

// submit executes cb between the streamer's pre and
// post execution hooks.
func submit(s *engine.Streamer, gpu driver.GPU, cb *driver.CmdBuffer) error {
	if err := s.PreCommandBufferExecution(cb); err != nil {
		return err
	}
	err := gpu.Execute(cb)
	s.PostCommandBufferExecution(cb)
	cb.Reset()
	return err
}
