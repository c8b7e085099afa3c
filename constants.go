package busroutes

import "time"

// Current version of the station snapshot format
const CurrentVersion = 1

// Artifact names inside the output directory
const (
	IndexFileName    = "routeMap.json"
	SnapshotFileName = "stations.bin"
	RawRoutesDir     = "raw_routes"
	SnappedRoutesDir = "snapped_routes"
)

// Layout of the index's lastUpdated field
const TimestampLayout = "2006-01-02 15:04:05"

// Pipeline defaults
const (
	DefaultCollectConcurrency = 8
	DefaultSnapConcurrency    = 2
	DefaultChunkSize          = 140
	DefaultSnapThreshold      = 90.0  // meters
	DefaultKeepThreshold      = 250.0 // meters
	DefaultEngineDelay        = time.Second
)
