package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/cardset/config"
)

func TestConfigFlags_Build(t *testing.T) {
	f := configFlags{preset: "small"}
	cfg, err := f.build()
	require.NoError(t, err)
	assert.Equal(t, config.SmallRegions.MaxCardsInArray, cfg.MaxCardsInArray())

	f = configFlags{preset: "Balanced", regionBytes: 1 << 20, cardBytes: 512, buckets: 4, segments: "fixed"}
	cfg, err = f.build()
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), cfg.MaxCardsInRegion())
	assert.Equal(t, uint32(4), cfg.NumBucketsInHowl())
	assert.Equal(t, arena.OptionsFixed, cfg.Options().Arena)
}

func TestConfigFlags_BuildErrors(t *testing.T) {
	tests := []configFlags{
		{preset: "tiny"},
		{preset: "small", segments: "triple"},
		{preset: "small", buckets: 3},
		{preset: "small", regionBytes: 1000, cardBytes: 512},
	}
	for _, f := range tests {
		_, err := f.build()
		assert.Error(t, err, "%+v", f)
	}
}

func TestSetIf(t *testing.T) {
	v := uint32(5)
	setIf(&v, 0)
	assert.Equal(t, uint32(5), v)
	setIf(&v, 9)
	assert.Equal(t, uint32(9), v)
}
