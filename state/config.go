package state

import (
	"fmt"
	"time"

	"github.com/goccy/go-yaml"
)

// NodeCfg represents local node-level configuration
type NodeCfg struct {
	Id             string            `yaml:"id"`                        // unique id for this node, also the log prefix
	HoldDown       time.Duration     `yaml:"hold_down,omitempty"`       // lifetime of remote routes between heartbeats
	GcDelay        time.Duration     `yaml:"gc_delay,omitempty"`        // how often expired routes are collected
	BroadcastDelay time.Duration     `yaml:"broadcast_delay,omitempty"` // how often changed routes are advertised
	MaxPoints      int               `yaml:"max_points,omitempty"`      // curves are simplified to this many points before being advertised
	LogPath        string            `yaml:"log_path,omitempty"`        // if not empty, logs are also written to this file
	SnapshotPath   string            `yaml:"snapshot_path,omitempty"`   // if not empty, learned routes are persisted to this sqlite database
	Accounts       map[string]string `yaml:"accounts,omitempty"`        // ledger prefix -> the account of this node on that ledger
	Pairs          []Advertisement   `yaml:"pairs"`                     // locally quoted ledger pairs
}

// ApplyDefaults fills in every unset tunable from the package defaults.
func (c *NodeCfg) ApplyDefaults() {
	if c.HoldDown == 0 {
		c.HoldDown = HoldDown
	}
	if c.GcDelay == 0 {
		c.GcDelay = GcDelay
	}
	if c.BroadcastDelay == 0 {
		c.BroadcastDelay = BroadcastDelay
	}
	if c.MaxPoints == 0 {
		c.MaxPoints = DefaultMaxPoints
	}
	if c.Accounts == nil {
		c.Accounts = make(map[string]string)
	}
}

// Ledgers returns every ledger named by a local pair, without duplicates, in first-seen order.
func (c *NodeCfg) Ledgers() []string {
	seen := make(map[string]struct{})
	ledgers := make([]string, 0)
	for _, p := range c.Pairs {
		for _, l := range []string{p.SourceLedger, p.DestinationLedger} {
			if _, ok := seen[l]; !ok {
				seen[l] = struct{}{}
				ledgers = append(ledgers, l)
			}
		}
	}
	return ledgers
}

// LocalPairs returns copies of the configured pairs with missing accounts filled in from Accounts.
func (c *NodeCfg) LocalPairs() []Advertisement {
	pairs := make([]Advertisement, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.SourceAccount == "" {
			p.SourceAccount = c.Accounts[p.SourceLedger]
		}
		if p.DestinationAccount == "" {
			p.DestinationAccount = c.Accounts[p.DestinationLedger]
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// ParseNodeCfg decodes, defaults and validates a node configuration.
func ParseNodeCfg(data []byte) (*NodeCfg, error) {
	cfg := &NodeCfg{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse node config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := NodeConfigValidator(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SampleNodeCfg returns a small configuration quoting a single pair in both directions.
func SampleNodeCfg(id string) NodeCfg {
	return NodeCfg{
		Id:             id,
		HoldDown:       HoldDown,
		GcDelay:        GcDelay,
		BroadcastDelay: BroadcastDelay,
		MaxPoints:      DefaultMaxPoints,
		Accounts: map[string]string{
			"test.usd.": "test.usd." + id,
			"test.eur.": "test.eur." + id,
		},
		Pairs: []Advertisement{
			{
				SourceLedger:      "test.usd.",
				DestinationLedger: "test.eur.",
				Points:            MustLiquidityCurve([2]int64{0, 0}, [2]int64{1000000, 900000}),
				MinMessageWindow:  1,
			},
			{
				SourceLedger:      "test.eur.",
				DestinationLedger: "test.usd.",
				Points:            MustLiquidityCurve([2]int64{0, 0}, [2]int64{900000, 1000000}),
				MinMessageWindow:  1,
			},
		},
	}
}
