package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/encodeous/ratemesh/state"
	"github.com/encodeous/ratemesh/store"
	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNodeCfg(t *testing.T, cfg state.NodeCfg) {
	t.Helper()
	data, err := yaml.Marshal(&cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))
	old := nodeConfigPath
	nodeConfigPath = path
	t.Cleanup(func() { nodeConfigPath = old })
}

func TestLoadTables(t *testing.T) {
	writeNodeCfg(t, state.SampleNodeCfg("mark"))
	quoteCmd.SetContext(context.Background())

	tables, cfg, err := loadTables(quoteCmd)
	require.NoError(t, err)
	assert.Equal(t, "mark", cfg.Id)

	q, err := quoteBy("1000", tables.FindBestHopForSourceAmount, "test.usd.", "test.eur.")
	require.NoError(t, err)
	assert.True(t, q.IsFinal)
	assert.Equal(t, "test.eur.mark", q.NextHop)
	assert.Equal(t, "900", q.FinalAmount.String())

	q, err = quoteBy("900", tables.FindBestHopForDestinationAmount, "test.usd.", "test.eur.")
	require.NoError(t, err)
	assert.Equal(t, "1000", q.SourceAmount.String())
}

func TestLoadTablesWithSnapshot(t *testing.T) {
	cfg := state.SampleNodeCfg("mark")
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "snapshot.db")
	writeNodeCfg(t, cfg)

	st, err := store.Open(cfg.SnapshotPath)
	require.NoError(t, err)
	// old snapshots are still loaded offline
	require.NoError(t, st.SaveSnapshot(context.Background(), []store.Entry{{
		Peer: "mary",
		Advertisement: &state.Advertisement{
			SourceLedger:      "test.eur.",
			DestinationLedger: "test.jpy.",
			MinMessageWindow:  1,
			Points:            state.MustLiquidityCurve([2]int64{0, 0}, [2]int64{1000, 150000}),
		},
	}}, time.Now().Add(-24*time.Hour)))
	require.NoError(t, st.Close())

	tableCmd.SetContext(context.Background())
	tables, _, err := loadTables(tableCmd)
	require.NoError(t, err)
	q, err := quoteBy("1000", tables.FindBestHopForSourceAmount, "test.usd.", "test.jpy.")
	require.NoError(t, err)
	assert.Equal(t, "mary", q.NextHop)
	assert.Equal(t, "900", q.DestinationAmount.String())
	assert.Equal(t, "135000", q.FinalAmount.String())
}

func TestLoadTablesMissingConfig(t *testing.T) {
	old := nodeConfigPath
	nodeConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { nodeConfigPath = old })
	_, _, err := loadTables(tableCmd)
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	amount, err := parseAmount("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", amount.String())

	for _, bad := range []string{"", "-1", "1.5", "abc"} {
		_, err := parseAmount(bad)
		assert.ErrorIs(t, err, state.ErrInvalidArgument, bad)
	}
}
