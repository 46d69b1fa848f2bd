package checkpoint

// Checkpoint is one persisted cursor row. Timestamp is the write time in Unix
// milliseconds and orders rows of the same chain.
type Checkpoint struct {
	ChainID   uint64 `json:"chain_id"`
	Cursor    uint64 `json:"cursor"`
	Timestamp int64  `json:"timestamp"`
}

// TableConfig names the tables used by the repository.
type TableConfig struct {
	Cluster          string // empty for a single node
	Database         string
	CheckpointsTable string
	AddressesTable   string
}

// DefaultTableConfig returns the default table names in database.
func DefaultTableConfig(database, cluster string) TableConfig {
	return TableConfig{
		Cluster:          cluster,
		Database:         database,
		CheckpointsTable: "scan_checkpoints",
		AddressesTable:   "scan_addresses",
	}
}

func (c TableConfig) onCluster() string {
	if c.Cluster == "" {
		return ""
	}
	return "ON CLUSTER " + c.Cluster
}
