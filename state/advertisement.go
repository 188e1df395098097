package state

import (
	"fmt"
	"slices"
)

// Advertisement is the flat record peers exchange to describe a route. It is both the input of
// RoutingTables.AddRoute and the output of RoutingTables.ToAdvertisements.
type Advertisement struct {
	SourceLedger       string          `yaml:"source_ledger" json:"source_ledger"`
	DestinationLedger  string          `yaml:"destination_ledger" json:"destination_ledger"`
	Points             *LiquidityCurve `yaml:"points" json:"points"`
	MinMessageWindow   uint32          `yaml:"min_message_window" json:"min_message_window"`
	SourceAccount      string          `yaml:"source_account,omitempty" json:"source_account,omitempty"`
	DestinationAccount string          `yaml:"destination_account,omitempty" json:"destination_account,omitempty"`
	TargetPrefix       string          `yaml:"target_prefix,omitempty" json:"target_prefix,omitempty"`
	AdditionalInfo     map[string]any  `yaml:"additional_info,omitempty" json:"additional_info,omitempty"`
	AddedDuringEpoch   uint64          `yaml:"added_during_epoch,omitempty" json:"added_during_epoch,omitempty"`
	Paths              [][]string      `yaml:"paths,omitempty" json:"paths,omitempty"`
}

func AdvertisementValidator(adv *Advertisement) error {
	if adv.SourceLedger == "" {
		return fmt.Errorf("%w: missing source_ledger", ErrInvalidRoute)
	}
	if adv.DestinationLedger == "" {
		return fmt.Errorf("%w: missing destination_ledger", ErrInvalidRoute)
	}
	if adv.Points == nil {
		return fmt.Errorf("%w: %s -> %s has no points", ErrInvalidRoute, adv.SourceLedger, adv.DestinationLedger)
	}
	return nil
}

// RouteFromAdvertisement converts a received record into a single hop route. The route is
// neither local nor expiring; callers decide both.
func RouteFromAdvertisement(adv *Advertisement) (*Route, error) {
	if err := AdvertisementValidator(adv); err != nil {
		return nil, err
	}
	target := adv.TargetPrefix
	if target == "" {
		target = adv.DestinationLedger
	}
	paths := make([][]string, 0, len(adv.Paths))
	for _, p := range adv.Paths {
		paths = append(paths, slices.Clone(p))
	}
	if len(paths) == 0 {
		paths = [][]string{{}}
	}
	return &Route{
		Curve:              adv.Points,
		SourceLedger:       adv.SourceLedger,
		NextLedger:         adv.DestinationLedger,
		DestinationLedger:  adv.DestinationLedger,
		TargetPrefix:       target,
		MinMessageWindow:   adv.MinMessageWindow,
		SourceAccount:      adv.SourceAccount,
		DestinationAccount: adv.DestinationAccount,
		AdditionalInfo:     adv.AdditionalInfo,
		AddedDuringEpoch:   adv.AddedDuringEpoch,
		Paths:              paths,
	}, nil
}

// Advertisement flattens the route into the record sent to peers.
func (r *Route) Advertisement() *Advertisement {
	adv := &Advertisement{
		SourceLedger:      r.SourceLedger,
		DestinationLedger: r.DestinationLedger,
		Points:            r.Curve,
		MinMessageWindow:  r.MinMessageWindow,
		SourceAccount:     r.SourceAccount,
		AddedDuringEpoch:  r.AddedDuringEpoch,
		Paths:             r.AdvertisedPaths(),
	}
	if r.TargetPrefix != r.DestinationLedger {
		adv.TargetPrefix = r.TargetPrefix
	}
	return adv
}
