package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func NodeConfigValidator(node *NodeCfg) error {
	err := NameValidator(node.Id)
	if err != nil {
		return err
	}
	if node.HoldDown <= 0 {
		return fmt.Errorf("hold_down must be positive, got %s", node.HoldDown)
	}
	if node.GcDelay <= 0 {
		return fmt.Errorf("gc_delay must be positive, got %s", node.GcDelay)
	}
	if node.BroadcastDelay <= 0 {
		return fmt.Errorf("broadcast_delay must be positive, got %s", node.BroadcastDelay)
	}
	if node.MaxPoints <= 0 {
		return fmt.Errorf("%w: max_points must be positive, got %d", ErrInvalidArgument, node.MaxPoints)
	}
	if node.LogPath != "" {
		if err := PathValidator(node.LogPath); err != nil {
			return fmt.Errorf("invalid log_path: %w", err)
		}
	}
	if node.SnapshotPath != "" {
		if err := PathValidator(node.SnapshotPath); err != nil {
			return fmt.Errorf("invalid snapshot_path: %w", err)
		}
	}
	seen := make(map[Pair[string, string]]struct{})
	for i := range node.Pairs {
		p := &node.Pairs[i]
		if err := AdvertisementValidator(p); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
		if p.SourceLedger == p.DestinationLedger {
			return fmt.Errorf("pair %d: %w: %s quotes to itself", i, ErrInvalidRoute, p.SourceLedger)
		}
		key := Pair[string, string]{p.SourceLedger, p.DestinationLedger}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate pair found: %s, %s", key.V1, key.V2)
		}
		seen[key] = struct{}{}
	}
	return nil
}
