package checkpoint

const (
	createCheckpointsTableQuery = `CREATE TABLE IF NOT EXISTS %s.%s %s (
	chain_id UInt64,
	cursor UInt64,
	timestamp Int64
) ENGINE = ReplacingMergeTree(timestamp)
ORDER BY chain_id`

	createAddressesTableQuery = `CREATE TABLE IF NOT EXISTS %s.%s %s (
	chain_id UInt64,
	address String,
	cursor UInt64
) ENGINE = ReplacingMergeTree
ORDER BY (chain_id, address)`

	writeCheckpointQuery = `INSERT INTO %s.%s (chain_id, cursor, timestamp) VALUES (?, ?, ?)`

	readCheckpointQuery = `SELECT chain_id, cursor, timestamp FROM %s.%s
WHERE chain_id = ?
ORDER BY timestamp DESC, cursor ASC
LIMIT 1`

	insertAddressesQuery = `INSERT INTO %s.%s (chain_id, address, cursor)`

	selectAddressesQuery = `SELECT DISTINCT address FROM %s.%s WHERE chain_id = ?`

	deleteChainQuery = `DELETE FROM %s.%s %s WHERE chain_id = ?`
)
