// cmd/dmcbridge/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"

	"github.com/tamzrod/dmc-bridge/internal/api"
	"github.com/tamzrod/dmc-bridge/internal/config"
	"github.com/tamzrod/dmc-bridge/internal/controller"
	"github.com/tamzrod/dmc-bridge/internal/poller"
	"github.com/tamzrod/dmc-bridge/internal/status"
	"github.com/tamzrod/dmc-bridge/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: dmcbridge <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	config.Normalize(cfg)

	name := cfg.Controller.Name

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Build controller pipeline
	// --------------------

	// Sinks are appended before the cycle starts.
	events := writer.Fanout{controller.LogEvents{Name: name}}

	p, ctrl, closeTransport, err := poller.Build(cfg, &events)
	if err != nil {
		log.Fatalf("controller build failed (controller=%s): %v", name, err)
	}

	var closers []func() error
	closers = append(closers, closeTransport)

	// ---- websocket api (optional) ----
	var hub *api.Server
	if ws := cfg.Publish.WebSocket; ws != nil {
		hub, err = api.New(api.Config{
			Listen: ws.Listen,
			Target: api.ControllerDispatcher{C: ctrl},
		})
		if err != nil {
			log.Fatalf("api build failed (controller=%s): %v", name, err)
		}
		events = append(events, hub)
		closers = append(closers, hub.Close)
	}

	// ---- modbus writer (optional) ----
	var dataWriter writer.Writer
	plan, modbusEnabled, err := writer.BuildPlan(cfg)
	if err != nil {
		log.Fatalf("writer plan failed (controller=%s): %v", name, err)
	}
	if modbusEnabled {
		cli, closeWriter, err := writer.BuildEndpointClient(plan)
		if err != nil {
			log.Fatalf("writer client failed (controller=%s): %v", name, err)
		}
		closers = append(closers, closeWriter)
		dataWriter = writer.New(plan, cli)
	}

	closeAll := func() {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		if errs != nil {
			log.Printf("close failed (controller=%s): %v", name, errs)
		}
	}
	defer closeAll()

	// --------------------
	// Startup probing (fail fast)
	// --------------------

	if err := ctrl.Startup(); err != nil {
		closeAll()
		log.Fatalf("startup failed (controller=%s): %v", name, err)
	}

	// ---- channel between poller and publishers ----
	out := make(chan status.Report)

	// Orchestrator: delivers every report to the publishers.
	go func() {
		var lastWriteErr string

		for {
			select {
			case <-ctx.Done():
				return

			case rep := <-out:
				if dataWriter != nil {
					// Log write failures once per distinct error.
					errText := ""
					if err := dataWriter.Write(rep); err != nil {
						errText = err.Error()
					}
					if errText != lastWriteErr {
						if errText != "" {
							log.Printf("writer error (controller=%s): %s", name, errText)
						} else {
							log.Printf("writer recovered (controller=%s)", name)
						}
						lastWriteErr = errText
					}
				}

				if hub != nil {
					hub.Report(rep)
				}
			}
		}
	}()

	if hub != nil {
		go func() {
			if err := hub.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("api server failed (controller=%s): %v", name, err)
			}
		}()
	}

	// poller producer
	runDone := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(runDone)
	}()

	log.Printf("running (controller=%s, cycle=%dms)", name, cfg.Controller.CycleMs)

	// --------------------
	// Block until signalled
	// --------------------
	<-ctx.Done()
	log.Printf("shutting down (controller=%s)", name)

	// The transport closes only after the last tick.
	<-runDone
}
