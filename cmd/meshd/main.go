package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dr-isosan/LifeNode/core"
	"github.com/dr-isosan/LifeNode/internal/envapi"
	"github.com/dr-isosan/LifeNode/internal/logging"
	"github.com/dr-isosan/LifeNode/internal/observability"
	"github.com/dr-isosan/LifeNode/internal/telemetry"
	"github.com/dr-isosan/LifeNode/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a scenario file (JSON or YAML)")
	listenAddr := flag.String("listen", ":8080", "TCP address the environment API listens on")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	tickInterval := flag.Duration("tick-interval", time.Second, "wall-clock length of one simulation tick")
	sendRate := flag.Float64("send-rate", -1, "override packets injected per tick")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL for telemetry, overrides LIFENODE_MQTT_BROKER")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	sc := core.DefaultScenario()
	if *scenarioPath != "" {
		loaded, err := core.LoadScenario(*scenarioPath)
		if err != nil {
			log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.Err(err))
			os.Exit(1)
		}
		sc = *loaded
	}
	if *sendRate >= 0 {
		sc.SendRate = *sendRate
	}

	simMetrics, err := observability.NewSimCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise simulation metrics", logging.Err(err))
		os.Exit(1)
	}
	envMetrics, err := observability.NewEnvCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise environment metrics", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(*metricsAddr, simMetrics, log)

	bus := telemetry.NewBus(log)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var mqttPub *telemetry.MQTTPublisher
	mqttCfg := telemetry.MQTTConfigFromEnv()
	if *mqttBroker != "" {
		mqttCfg.Broker = *mqttBroker
	}
	if mqttCfg.Enabled() {
		mqttPub, err = telemetry.NewMQTTPublisher(mqttCfg, log)
		if err != nil {
			log.Error(ctx, "failed to connect MQTT publisher", logging.String("broker", mqttCfg.Broker), logging.Err(err))
			os.Exit(1)
		}
		events, cancel := bus.Subscribe(256)
		defer cancel()
		go mqttPub.Run(stopCtx, events)
	}

	sim, err := core.NewSimulator(sc.Config, nil, log)
	if err != nil {
		log.Error(ctx, "failed to build simulator", logging.Err(err))
		os.Exit(1)
	}

	episodes, err := envapi.NewEpisodeService(sc.Config, envMetrics, log)
	if err != nil {
		log.Error(ctx, "failed to build episode service", logging.Err(err))
		os.Exit(1)
	}

	apiSrv := &http.Server{
		Addr:    *listenAddr,
		Handler: envapi.NewServer(episodes, sim, bus, envMetrics, log).Routes(),
	}
	go func() {
		log.Info(ctx, "serving environment API", logging.String("addr", *listenAddr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "environment API server exited", logging.Err(err))
		}
	}()

	driver := &tickDriver{
		sim:     sim,
		sc:      sc,
		bus:     bus,
		metrics: simMetrics,
		log:     log,
	}

	tc := timectrl.NewTimeController(time.Now().UTC(), *tickInterval, timectrl.RealTime)
	tc.AddListener(driver.onTick)

	done := tc.Start(stopCtx, 0)
	log.Info(ctx, "mesh daemon running",
		logging.String("scenario", sc.Name),
		logging.Int("nodes", sc.Config.NumNodes),
		logging.Duration("tick_interval", *tickInterval),
		logging.Float64("send_rate", sc.SendRate),
	)

	<-stopCtx.Done()
	log.Info(ctx, "shutting down mesh daemon")
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if mqttPub != nil {
		mqttPub.Close()
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

// tickDriver advances the world simulation once per controller tick:
// inject background traffic, step, publish telemetry, record metrics.
// Fractional send rates carry over between ticks.
type tickDriver struct {
	sim     *core.Simulator
	sc      core.Scenario
	bus     *telemetry.Bus
	metrics *observability.SimCollector
	log     logging.Logger

	carry float64
}

func (d *tickDriver) onTick(time.Time) {
	d.carry += d.sc.SendRate
	for d.carry >= 1 {
		d.carry--
		id, err := d.sim.SendRandomPacket()
		if err != nil {
			// Congested or temporarily dead mesh; traffic resumes later.
			continue
		}
		d.metrics.AddPacketsSent(1)
		if p, err := d.sim.Packet(id); err == nil {
			d.bus.Publish(telemetry.PacketSentEvent(p.CreatedTick, p.ID, p.Source, p.Destination))
		}
	}

	report, err := d.sim.Step(d.sc.Config.FailureRate)
	if err != nil {
		d.log.Error(context.Background(), "tick failed", logging.Err(err))
		return
	}
	for _, ev := range telemetry.EventsFromReport(*report) {
		d.bus.Publish(ev)
	}
	d.metrics.ObserveTick(tickSample(*report))
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func tickSample(r core.TickReport) observability.TickSample {
	var reasons map[string]int
	if len(r.LossReasons) > 0 {
		reasons = make(map[string]int, len(r.LossReasons))
		for reason, n := range r.LossReasons {
			reasons[string(reason)] = n
		}
	}
	return observability.TickSample{
		Duration:           r.Duration,
		Delivered:          r.Delivered,
		Lost:               r.Lost,
		TimedOut:           r.TimedOut,
		LossReasons:        reasons,
		DeliveredLatencyMs: r.DeliveredLatencyMs,
		ActiveNodes:        r.ActiveNodes,
		InFlight:           r.InFlight,
	}
}
