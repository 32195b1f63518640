package peer

// Snapshot is the aggregated view of the collaboration for one polling tick.
// It is recomputed every tick and never persisted.
type Snapshot struct {
	Step       int64   `json:"step"`
	AlivePeers int     `json:"alive_peers"`
	Loss       float64 `json:"loss"`
	Samples    int64   `json:"samples"`
	Throughput float64 `json:"performance"`
}
