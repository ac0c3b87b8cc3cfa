package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/dr-isosan/LifeNode/core"
	"github.com/dr-isosan/LifeNode/internal/logging"
	"github.com/dr-isosan/LifeNode/internal/recording"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a scenario file (JSON or YAML)")
	ticks := flag.Int("ticks", 0, "override the scenario tick budget")
	sendRate := flag.Float64("send-rate", -1, "override packets injected per tick")
	seed := flag.Int64("seed", 0, "override the topology seed")
	failureRate := flag.Float64("failure-rate", -1, "override the per-tick node failure probability")
	record := flag.String("record", "", "record the run to this SQLite file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, or error")
	logFormat := flag.String("log-format", "text", "log format: text or json")

	flag.Parse()

	logger := logging.New(logging.Config{Level: *logLevel, Format: *logFormat})

	sc := core.DefaultScenario()
	if *scenarioPath != "" {
		loaded, err := core.LoadScenario(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load scenario: %v\n", err)
			atexit.Exit(1)
		}
		sc = *loaded
	}
	if *ticks > 0 {
		sc.Ticks = *ticks
	}
	if *sendRate >= 0 {
		sc.SendRate = *sendRate
	}
	if *seed != 0 {
		sc.Config.Seed = *seed
	}
	if *failureRate >= 0 {
		sc.Config.FailureRate = *failureRate
	}

	var rec recording.Recorder = recording.NullRecorder{}
	if *record != "" {
		sqlRec, err := recording.NewSQLite(*record, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open recorder: %v\n", err)
			atexit.Exit(1)
		}
		rec = sqlRec
	}

	sim, err := core.NewSimulator(sc.Config, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build simulator: %v\n", err)
		atexit.Exit(1)
	}

	fmt.Printf("Running scenario %q: %d nodes, %d ticks, send rate %.2f, failure rate %.3f, seed %d\n",
		sc.Name, sc.Config.NumNodes, sc.Ticks, sc.SendRate, sc.Config.FailureRate, sc.Config.Seed)

	summary, err := run(sim, sc, rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		atexit.Exit(1)
	}
	if err := rec.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close recorder: %v\n", err)
		atexit.Exit(1)
	}

	printSummary(summary)
	atexit.Exit(0)
}

type runSummary struct {
	Ticks int
	Sent  int
	Stats core.Stats
}

// run drives the whole scenario: inject background traffic, step, record.
// Fractional send rates carry over between ticks, so a rate of 0.5 injects
// one packet every other tick.
func run(sim *core.Simulator, sc core.Scenario, rec recording.Recorder) (*runSummary, error) {
	carry := 0.0
	sent := 0

	for i := 0; i < sc.Ticks; i++ {
		carry += sc.SendRate
		for carry >= 1 {
			carry--
			_, err := sim.SendRandomPacket()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, core.ErrBufferFull), errors.Is(err, core.ErrNoActivePair):
				// Congested or temporarily dead mesh; traffic resumes later.
			default:
				return nil, err
			}
		}

		report, err := sim.Step(sim.Config().FailureRate)
		if err != nil {
			return nil, err
		}
		if err := rec.RecordTick(*report); err != nil {
			return nil, err
		}
	}

	snap := sim.Snapshot()
	for _, p := range snap.Packets {
		if p.Status.Terminal() {
			if err := rec.RecordPacket(p); err != nil {
				return nil, err
			}
		}
	}

	return &runSummary{Ticks: sc.Ticks, Sent: sent, Stats: snap.Stats}, nil
}

func printSummary(s *runSummary) {
	fmt.Printf("Simulation complete: %d ticks, %d packets sent\n", s.Ticks, s.Sent)
	fmt.Printf("↳ delivered %d, lost %d, timed out %d, still in flight %d (delivery rate %.1f%%)\n",
		s.Stats.Delivered, s.Stats.Lost, s.Stats.TimedOut, s.Stats.InFlight, 100*s.Stats.DeliveryRate())
	if s.Stats.Delivered > 0 {
		fmt.Printf("↳ avg latency %.2f ms over %.2f hops\n", s.Stats.AvgLatencyMs(), s.Stats.AvgHops())
	}
	for reason, n := range s.Stats.Losses {
		fmt.Printf("↳ losses (%s): %d\n", reason, n)
	}
}
