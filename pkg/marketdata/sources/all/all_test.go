package all_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash-api/pkg/confkit"
	"cryptodash-api/pkg/marketdata"
	_ "cryptodash-api/pkg/marketdata/sources/all"
)

func TestShippedMarketConfigOrder(t *testing.T) {
	cfg, err := marketdata.LoadConfig(confkit.ProjectPath("etc/market.yaml"))
	require.NoError(t, err)

	want := append([]string{"coingecko"}, marketdata.DefaultFallbackOrder...)
	assert.Equal(t, want, cfg.Order())

	chain, err := cfg.BuildChain()
	require.NoError(t, err)
	names := make([]string, 0, len(chain))
	for _, src := range chain {
		names = append(names, src.Name())
	}
	assert.Equal(t, want, names)
}
