package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/banshee-data/range.report/internal/config"
	"github.com/banshee-data/range.report/internal/httputil"
	"github.com/banshee-data/range.report/internal/journal"
	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/ranging"
	"github.com/banshee-data/range.report/internal/telemetry"
	"github.com/banshee-data/range.report/internal/telemetry/mqttbridge"
	"github.com/banshee-data/range.report/internal/telemetry/stream"
	"github.com/banshee-data/range.report/internal/tof"
)

const httpShutdownTimeout = 1 * time.Second

// app owns every long-lived component of the publisher.
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	hub      *telemetry.Hub
	journal  *journal.Journal
	driver   *tof.Driver
	loop     *ranging.Loop
	stream   *stream.Server

	mqttClient mqtt.Client
	bridge     *mqttbridge.Bridge

	httpServer *http.Server
	httpAddr   net.Addr

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// newApp wires the components. Nothing touches the bus or the network yet.
func newApp(cfg *config.Config, regs tof.Registers) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		hub:      telemetry.NewHub(cfg.GetQueueSize()),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		telemetry.NewCollector(a.hub),
	)
	a.metrics = monitoring.NewMetrics(a.registry)

	observers := []tof.Option{
		tof.WithBootWait(cfg.GetBootAttempts(), cfg.GetBootInterval()),
		tof.WithObserver(func(t tof.Transition) {
			a.metrics.ObserveTransition(int(t.To), t.To.String())
		}),
	}
	if path := cfg.GetJournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return nil, err
		}
		a.journal = j
		observers = append(observers, tof.WithObserver(j.Observe))
		monitoring.Logf("journal: recording driver transitions to %s", path)
	}

	a.driver = tof.New(regs, observers...)
	a.loop = ranging.New(a.driver, a.hub, ranging.Config{
		Topic:                  cfg.GetTopic(),
		Interval:               cfg.GetPollInterval(),
		MaxConsecutiveFailures: cfg.GetMaxConsecutiveFailures(),
	}, ranging.WithMetrics(a.metrics))
	a.stream = stream.NewServer(a.hub, cfg.GetQueueSize())
	return a, nil
}

// start brings up the network surfaces, then initialises the sensor and
// starts ranging. The admin server comes first so a failed init can still be
// inspected.
func (a *app) start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if addr := a.cfg.GetHTTPListen(); addr != "" {
		if err := a.startHTTP(addr); err != nil {
			return err
		}
	}
	if err := a.stream.Start(a.cfg.GetStreamListen()); err != nil {
		return err
	}
	if broker := a.cfg.GetMQTTBroker(); broker != "" {
		c, err := mqttbridge.Connect(mqttbridge.Config{
			Broker:   broker,
			ClientID: a.cfg.GetMQTTClientID(),
			Username: a.cfg.GetMQTTUsername(),
			Password: a.cfg.GetMQTTPassword(),
		})
		if err != nil {
			return err
		}
		a.mqttClient = c
		a.bridge = mqttbridge.New(c, a.hub, a.cfg.GetMQTTTopic(), a.cfg.GetTopic())
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.bridge.Run(ctx); err != nil {
				monitoring.Warnf("mqtt bridge: %v", err)
			}
		}()
	}

	if err := a.driver.Init(); err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}
	if err := a.driver.Start(); err != nil {
		return fmt.Errorf("sensor start: %w", err)
	}
	monitoring.Logf("sensor ranging; publishing topic %q on %s", a.cfg.GetTopic(), a.stream.Addr())
	return nil
}

// run starts everything and polls on the calling goroutine, which owns the
// driver, until ctx is done or the loop gives up.
func (a *app) run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	return a.loop.Run(ctx)
}

// shutdown stops the device and releases the bus, then closes the telemetry
// transport, the admin server and the journal.
func (a *app) shutdown() {
	if err := a.driver.Close(); err != nil {
		monitoring.Warnf("sensor close: %v", err)
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.stream.Stop()
	a.hub.Close()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			monitoring.Warnf("HTTP server shutdown error: %v", err)
			if err := a.httpServer.Close(); err != nil {
				monitoring.Warnf("HTTP server force close error: %v", err)
			}
		}
	}
	a.wg.Wait()

	if a.mqttClient != nil {
		mqttbridge.Disconnect(a.mqttClient)
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			monitoring.Warnf("journal close: %v", err)
		}
	}
}

func (a *app) startHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.attachAdminRoutes(mux)
	a.hub.AttachAdminRoutes(mux)
	if a.journal != nil {
		a.journal.AttachAdminRoutes(mux)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", addr, err)
	}
	a.httpAddr = lis.Addr()
	a.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		monitoring.Logf("admin HTTP on %s", lis.Addr())
		if err := a.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Warnf("admin HTTP server: %v", err)
		}
	}()
	return nil
}

type sensorStatus struct {
	State     string        `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	BootPolls int           `json:"boot_polls"`
	Poll      ranging.Stats `json:"poll"`
	Topic     string        `json:"topic"`
}

func (a *app) status() sensorStatus {
	st := sensorStatus{
		State:     a.driver.State().String(),
		Reason:    a.driver.Reason().String(),
		BootPolls: a.driver.BootPolls(),
		Poll:      a.loop.Stats(),
		Topic:     a.cfg.GetTopic(),
	}
	if err := a.driver.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

func (a *app) attachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("sensor", "sensor driver state and poll counters", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		httputil.WriteJSONOK(w, a.status())
	})
}
