package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/cardkit/cardset"
	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/cardset/container"
	"github.com/joshuapare/cardkit/cardset/memory"
	"github.com/joshuapare/cardkit/internal/logger"
)

var (
	stressOpts       configFlags
	stressWorkers    int
	stressRegions    uint32
	stressAdds       int
	stressRounds     int
	stressSeed       uint64
	stressBacking    string
	stressSkipVerify bool
)

func init() {
	cmd := newStressCmd()
	stressOpts.register(cmd)
	fl := cmd.Flags()
	fl.IntVar(&stressWorkers, "goroutines", 8, "Concurrent writers")
	fl.Uint32Var(&stressRegions, "regions", 64, "Card regions written to")
	fl.IntVar(&stressAdds, "adds", 100_000, "Cards added per goroutine and round")
	fl.IntVar(&stressRounds, "rounds", 1, "Fill and clear cycles")
	fl.Uint64Var(&stressSeed, "seed", 1, "Random seed")
	fl.StringVar(&stressBacking, "backing", "heap", "Segment memory: heap or mmap")
	fl.BoolVar(&stressSkipVerify, "no-verify", false, "Skip the membership check")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Add random cards concurrently and report",
		Long: `The stress command fills a card set from many goroutines, verifies
that every added card is found, and reports occupancy, container
coarsening and memory use. With several rounds the set is cleared between
rounds and reuses its pooled segments.

Example:
  cardsetctl stress --goroutines 16 --regions 8 --adds 50000
  cardsetctl stress --preset small --backing mmap --rounds 3 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
}

// StressReport is the result of one round.
type StressReport struct {
	Round      int
	Adds       int
	Duration   time.Duration
	AddsPerSec float64
	Occupied   uint64
	Regions    int
	MemSize    uint64
	Unused     uint64
	Containers map[string]int
	Coarsened  map[string]uint64
	Collisions map[string]uint64
	Memory     []memory.KindStats

	coarsen cardset.CoarsenSnapshot
}

func runStress() error {
	cfg, err := stressOpts.build()
	if err != nil {
		return err
	}
	backing, err := arena.BackingByName(stressBacking)
	if err != nil {
		return err
	}
	if stressWorkers < 1 || stressRegions == 0 {
		return fmt.Errorf("need at least one goroutine and one region")
	}

	pools := memory.NewPools(cfg, memory.PoolOptions{Backing: backing})
	defer pools.Close()
	cs := cardset.New(memory.NewManager(pools))

	printVerbose("%s", cfg)
	var (
		reports []StressReport
		prev    cardset.CoarsenSnapshot
	)
	for round := range stressRounds {
		if round > 0 {
			cs.Clear()
		}
		r, err := stressRound(cs, round, prev)
		if err != nil {
			return err
		}
		prev = cs.CoarsenStats()
		reports = append(reports, r)
		if !jsonOut {
			printRound(cs, r)
		}
	}
	cs.Clear()
	logger.Info("stress: done", "rounds", stressRounds, "pooledBytes", pools.FreeMemSize())

	if jsonOut {
		return printJSON(reports)
	}
	return nil
}

// stressRound fills cs once. Coarsening counts are reported relative to
// prev, since Clear keeps the counters.
func stressRound(cs *cardset.CardSet, round int, prev cardset.CoarsenSnapshot) (StressReport, error) {
	cards := cs.Config().MaxCardsInRegion()
	source := func(w int) *rand.Rand {
		return rand.New(rand.NewPCG(stressSeed+uint64(round), uint64(w)))
	}

	start := time.Now()
	var wg sync.WaitGroup
	for w := range stressWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := source(w)
			for range stressAdds {
				cs.AddCard(rng.Uint32N(stressRegions), rng.Uint32N(cards))
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if !stressSkipVerify {
		for w := range stressWorkers {
			rng := source(w)
			for range stressAdds {
				region, card := rng.Uint32N(stressRegions), rng.Uint32N(cards)
				if !cs.ContainsCard(region, card) {
					return StressReport{}, fmt.Errorf("round %d: card %d of region %d lost", round, card, region)
				}
			}
		}
		printVerbose("round %d: membership verified\n", round)
	}

	info := cs.Info()
	total := stressWorkers * stressAdds
	r := StressReport{
		Round:      round,
		Adds:       total,
		Duration:   elapsed,
		AddsPerSec: float64(total) / elapsed.Seconds(),
		Occupied:   info.Occupied,
		Regions:    info.Regions,
		MemSize:    info.MemSize,
		Unused:     info.Unused,
		Containers: map[string]int{},
		Coarsened:  map[string]uint64{},
		Collisions: map[string]uint64{},
		Memory:     cs.Manager().Stats(),
		coarsen:    info.Coarsen.Sub(prev),
	}
	for t, n := range info.Containers {
		if n > 0 {
			r.Containers[container.Type(t).String()] = n
		}
	}
	for t := range cardset.NumTransitions {
		if n := r.coarsen.Coarsened[t]; n > 0 {
			r.Coarsened[t.String()] = n
		}
		if n := r.coarsen.Collisions[t]; n > 0 {
			r.Collisions[t.String()] = n
		}
	}
	return r, nil
}

func printRound(cs *cardset.CardSet, r StressReport) {
	if quiet {
		return
	}
	p := message.NewPrinter(language.English)
	p.Printf("round %d: %d adds in %v (%.0f adds/s)\n", r.Round, r.Adds, r.Duration.Round(time.Millisecond), r.AddsPerSec)
	cs.PrintInfo(os.Stdout)
	fmt.Print("this round, ")
	r.coarsen.Print(os.Stdout)
	cs.Manager().PrintStats(os.Stdout)
	fmt.Println()
}
