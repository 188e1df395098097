package cmd

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/encodeous/ratemesh/core"
	"github.com/encodeous/ratemesh/state"
	"github.com/encodeous/ratemesh/store"
	"github.com/spf13/cobra"
)

const (
	DefaultNodeConfigPath = "node.yaml"
)

func readNodeConfig() (*state.NodeCfg, error) {
	file, err := os.ReadFile(nodeConfigPath)
	if err != nil {
		return nil, err
	}
	return state.ParseNodeCfg(file)
}

// loadTables builds the tables of the configured node offline. Routes from the snapshot are included
// when the node has one, regardless of their age.
func loadTables(cmd *cobra.Command) (*core.RoutingTables, *state.NodeCfg, error) {
	cfg, err := readNodeConfig()
	if err != nil {
		return nil, nil, err
	}
	tables := core.NewRoutingTables(cfg.HoldDown, nil, nil)
	if err := tables.AddLocalRoutes(cfg.LocalPairs()); err != nil {
		return nil, nil, err
	}
	if cfg.SnapshotPath == "" {
		return tables, cfg, nil
	}
	if _, err := os.Stat(cfg.SnapshotPath); err != nil {
		return tables, cfg, nil
	}
	st, err := store.Open(cfg.SnapshotPath)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()
	entries, err := st.LoadSnapshot(cmd.Context(), time.Time{})
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.Advertisement.SourceAccount == "" {
			e.Advertisement.SourceAccount = e.Peer
		}
		if _, err := tables.AddRoute(e.Advertisement, true); err != nil {
			return nil, nil, fmt.Errorf("snapshot route from %s: %w", e.Peer, err)
		}
	}
	return tables, cfg, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is not a non-negative integer", state.ErrInvalidArgument, s)
	}
	return amount, nil
}
