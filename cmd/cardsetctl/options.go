package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/cardset/config"
)

// configFlags binds every tuning option to a flag. Unset flags keep the
// preset's value.
type configFlags struct {
	preset      string
	regionBytes uint64
	cardBytes   uint64
	maxLogCards uint32
	array       uint32
	buckets     uint32
	howlFull    uint32
	bitmapFull  uint32
	segments    string
	transfer    uint64
}

var presets = map[string]config.Options{
	"small":    config.SmallRegions,
	"balanced": config.Balanced,
	"large":    config.LargeRegions,
}

var segmentOptions = map[string]arena.AllocOptions{
	"doubling": arena.OptionsDoubling,
	"gentle":   arena.OptionsGentle,
	"fixed":    arena.OptionsFixed,
}

func (f *configFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.preset, "preset", "balanced", "Option preset: small, balanced, large")
	fl.Uint64Var(&f.regionBytes, "region-size", 0, "Heap region size in bytes (power of two)")
	fl.Uint64Var(&f.cardBytes, "card-size", 512, "Card size in bytes (power of two)")
	fl.Uint32Var(&f.maxLogCards, "max-log-cards", 0, "Maximum log2 cards per card region")
	fl.Uint32Var(&f.array, "array-size", 0, "Cards per array container")
	fl.Uint32Var(&f.buckets, "howl-buckets", 0, "Buckets per howl container (power of two)")
	fl.Uint32Var(&f.howlFull, "howl-full-percent", 0, "Howl occupancy percentage that coarsens to full")
	fl.Uint32Var(&f.bitmapFull, "bitmap-full-percent", 0, "Bitmap occupancy percentage that coarsens to full")
	fl.StringVar(&f.segments, "segments", "", "Segment growth: doubling, gentle, fixed")
	fl.Uint64Var(&f.transfer, "transfer-threshold", 0, "Free-list pending batch size")
}

// build applies the flags to the preset and derives the configuration.
func (f *configFlags) build() (*config.Config, error) {
	opts, ok := presets[strings.ToLower(f.preset)]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", f.preset)
	}
	if f.regionBytes != 0 {
		var err error
		if opts, err = config.FromRegionSize(opts, f.regionBytes, f.cardBytes); err != nil {
			return nil, err
		}
	}
	setIf(&opts.MaxLogCardsPerCardRegion, f.maxLogCards)
	setIf(&opts.MaxCardsInArray, f.array)
	setIf(&opts.NumBucketsInHowl, f.buckets)
	setIf(&opts.HowlToFullPercent, f.howlFull)
	setIf(&opts.BitmapToFullPercent, f.bitmapFull)
	setIf(&opts.TransferThreshold, f.transfer)
	if f.segments != "" {
		seg, ok := segmentOptions[strings.ToLower(f.segments)]
		if !ok {
			return nil, fmt.Errorf("unknown segment growth %q", f.segments)
		}
		opts.Arena = seg
	}
	return config.New(opts)
}

func setIf[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
