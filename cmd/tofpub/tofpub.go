// Command tofpub drives a VL53L4CX over I2C and publishes each ranging
// sample as a telemetry line to gRPC stream subscribers (and optionally an
// MQTT broker).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/range.report/internal/config"
	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/regbus"
	"github.com/banshee-data/range.report/internal/tof"
	"github.com/banshee-data/range.report/internal/version"
)

var (
	configPath   = flag.String("config", "", "YAML config file (optional)")
	devMode      = flag.Bool("dev", false, "Use the in-process sensor simulator instead of I2C")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	bus          = flag.String("bus", "", "I2C bus name or path, overrides sensor.bus")
	listen       = flag.String("listen", "", "Admin HTTP listen address, overrides http.listen")
	streamListen = flag.String("stream-listen", "", "Telemetry stream listen address, overrides telemetry.listen")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("tofpub"))
		return
	}
	monitoring.Configure(os.Stderr, *debug)
	monitoring.Logf("%s", version.String("tofpub"))

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	regs, err := openSensor(cfg, *devMode)
	if err != nil {
		log.Fatalf("sensor: %v", err)
	}

	a, err := newApp(cfg, regs)
	if err != nil {
		_ = regs.Close()
		log.Fatalf("setup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := a.run(ctx)
	a.shutdown()
	if runErr != nil {
		log.Fatalf("tofpub: %v", runErr)
	}
	monitoring.Logf("graceful shutdown complete")
}

// loadConfig reads -config if given and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Empty()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *bus != "" {
		cfg.SetBus(*bus)
	}
	if *listen != "" {
		cfg.SetHTTPListen(*listen)
	}
	if *streamListen != "" {
		cfg.SetStreamListen(*streamListen)
	}
	return cfg, cfg.Validate()
}

// openSensor claims the sensor's bus address, or a simulator in dev mode.
func openSensor(cfg *config.Config, dev bool) (*regbus.Transport, error) {
	if dev {
		sim := tof.NewSimulator(tof.DefaultSimOptions)
		monitoring.Logf("dev mode: using simulated sensor")
		return regbus.New(sim.Bus, "sim", cfg.GetAddress(), sim.Bus)
	}
	return regbus.Open(cfg.GetBus(), cfg.GetAddress())
}
