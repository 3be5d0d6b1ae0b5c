package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/cardkit/cardset/memory"
)

var configOpts configFlags

func init() {
	cmd := newConfigCmd()
	configOpts.register(cmd)
	rootCmd.AddCommand(cmd)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print a derived card set configuration",
		Long: `The config command validates tuning options and prints the values
derived from them: card region size, container capacities, coarsening
thresholds and slot sizes.

Example:
  cardsetctl config --preset large
  cardsetctl config --region-size 33554432 --array-size 64 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig()
		},
	}
}

// ConfigReport is the JSON form of a configuration.
type ConfigReport struct {
	Name                     string
	CardsPerCardRegion       uint32
	CardRegionsPerHeapRegion uint32
	InlineCards              uint32
	InlineBitsPerCard        uint32
	ArrayCards               uint32
	HowlBuckets              uint32
	HowlFullThreshold        uint32
	BitmapBits               uint32
	BitmapFullThreshold      uint32
	SlotWords                map[string]uint32
	Segments                 string
	TransferThreshold        uint64
}

func runConfig() error {
	cfg, err := configOpts.build()
	if err != nil {
		return err
	}
	if !jsonOut {
		printInfo("%s", cfg)
		return nil
	}

	opts := cfg.Options()
	report := ConfigReport{
		Name:                     opts.Name,
		CardsPerCardRegion:       cfg.MaxCardsInRegion(),
		CardRegionsPerHeapRegion: 1 << cfg.Log2CardRegionsPerHeapRegion(),
		InlineCards:              cfg.MaxCardsInInlinePtr(),
		InlineBitsPerCard:        cfg.InlineBitsPerCard(),
		ArrayCards:               cfg.MaxCardsInArray(),
		HowlBuckets:              cfg.NumBucketsInHowl(),
		HowlFullThreshold:        cfg.CardsInHowlThreshold(),
		BitmapBits:               cfg.MaxCardsInHowlBitmap(),
		BitmapFullThreshold:      cfg.CardsInHowlBitmapThreshold(),
		SlotWords:                map[string]uint32{},
		Segments:                 opts.Arena.String(),
		TransferThreshold:        opts.TransferThreshold,
	}
	for _, k := range memory.Kinds() {
		report.SlotWords[k.String()] = memory.SlotWords(cfg, k)
	}
	return printJSON(report)
}
