package state

import "time"

var (
	// HoldDown is how long a remote route lives without being refreshed by its connector.
	HoldDown        = time.Second * 45
	GcDelay         = time.Millisecond * 1000
	BroadcastDelay  = time.Second * 5
	UpdateDedupTTL  = time.Second * 30
	SnapshotDelay   = time.Minute * 1
	DispatchBacklog = 512

	// DefaultMaxPoints is the number of points a curve is simplified to before it is advertised.
	DefaultMaxPoints = 10

	// MaxUpdateSize bounds a single encoded update batch.
	MaxUpdateSize = 1 << 20
)
