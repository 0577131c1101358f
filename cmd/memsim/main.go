// Package main provides the entry point for MemSim.
// MemSim is an educational multi-level memory hierarchy simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/sarchlab/memsim/config"
	"github.com/sarchlab/memsim/monitoring"
	"github.com/sarchlab/memsim/sim"
	"github.com/sarchlab/memsim/trace"
)

var (
	configPath = flag.String("config", "",
		"Path to the machine configuration file")
	tracePath = flag.String("trace", "",
		"Path to the memory trace file")
	debugLevel = flag.Int("debug", 0,
		"Debug verbosity (0-2)")
	dramsysPath = flag.String("dramsys", "",
		"Append memory accesses to a DRAMSys trace file")
	stopOnBreakpoint = flag.Bool("run-to-breakpoint", false,
		"Stop at the first trace breakpoint instead of running to the end")
	monitor = flag.Bool("monitor", false,
		"Serve read-only JSON snapshots over HTTP")
	monitorPort = flag.Int("port", 0,
		"Monitoring server port (0 picks a random port)")
	openBrowser = flag.Bool("open", false,
		"Open the monitoring URL in the default browser")
)

func main() {
	flag.Parse()

	if *configPath == "" || *tracePath == "" {
		fmt.Fprintf(os.Stderr,
			"Usage: memsim -config <machine.ini> -trace <accesses.vca>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	for _, warning := range cfg.Warnings {
		color.Yellow("Warning: %s", warning)
	}

	ops, err := trace.Load(*tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	simulator := sim.New(cfg, ops, sim.WithDebugLevel(*debugLevel))

	if *dramsysPath != "" {
		tracer, err := sim.NewDRAMSysTracer(*dramsysPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening DRAMSys trace: %v\n", err)
			os.Exit(1)
		}
		defer tracer.Close()
		simulator.SetTracer(tracer)
	}

	if *monitor {
		m := monitoring.NewMonitor()
		if *monitorPort != 0 {
			m.WithPortNumber(*monitorPort)
		}
		m.RegisterSimulator(simulator)
		url, err := m.StartServer()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting monitor: %v\n", err)
			os.Exit(1)
		}
		if *openBrowser {
			m.OpenDashboard(url)
		}
	}

	simulator.StepAll(*stopOnBreakpoint)

	printStatistics(simulator)
}

// printStatistics renders the run report through the observation surface,
// coloring hits green and misses red.
func printStatistics(s *sim.Simulator) {
	header := color.New(color.FgCyan, color.Bold)
	hits := color.New(color.FgGreen)
	misses := color.New(color.FgRed)

	cycles := float64(s.Cycle())

	header.Println("\n------ Statistics ------")
	fmt.Println("\nCPU:")
	fmt.Printf("\tTotal access time (s): %.4g\n", float64(s.TotalAccessTime()))
	if cycles > 0 {
		fmt.Printf("\tAverage memory access time (s): %.4g\n",
			float64(s.TotalAccessTime())/cycles)
	}

	for i := 0; i < s.NumCaches(); i++ {
		c := s.Cache(i)
		fmt.Printf("\nCache L%d:\n", i+1)
		fmt.Printf("\tTotal accesses: %d\n", c.Accesses())
		hits.Printf("\tHits: %d\n", c.Hits())
		misses.Printf("\tMisses: %d\n", c.Misses())
		if cycles > 0 {
			hits.Printf("\tHit rate: %.1f%%\n", float64(c.Hits())/cycles*100)
			misses.Printf("\tMiss rate: %.1f%%\n",
				float64(c.Misses())/cycles*100)
		}
	}

	memory := s.Memory()
	fmt.Println("\nMemory:")
	fmt.Printf("\tTotal accesses: %d\n",
		memory.AccessesSingle()+memory.AccessesBurst())
	fmt.Printf("\tFirst word accesses: %d\n", memory.AccessesSingle())
	fmt.Printf("\tBurst accesses: %d\n", memory.AccessesBurst())
}
