// Package storage persists anomalies, volume/flow history, raw underlying
// ticks, and market state. Grounded on stadam23-Eve-flipper's SQLite access
// pattern (modernc.org/sqlite, schema_version-gated migration), modeling the
// original Azure Table Storage partitioned key/value layout: each row
// carries a PartitionKey (always "SPY" here) and a RowKey that encodes
// sort order, upserted by (PartitionKey, RowKey).
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"spyoptions/internal/contracts"
)

// reversedTickCeiling mirrors the original implementation's
// "9999999999999 - timestamp_ticks" trick: subtracting millisecond
// timestamps from a constant above any real timestamp turns ascending
// insertion order into descending (newest-first) RowKey order under a
// plain ORDER BY RowKey.
const reversedTickCeiling = int64(9_999_999_999_999)

// Store wraps a SQLite database implementing the persistence side of the
// Sink (spec.md §4.G).
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at dsn and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	s := &Store{db: db, log: slog.With("component", "storage")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	_ = s.db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)
	if version >= 1 {
		return nil
	}

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

		CREATE TABLE IF NOT EXISTS anomalies (
			partition_key TEXT NOT NULL,
			row_key       TEXT NOT NULL,
			payload       TEXT NOT NULL,
			PRIMARY KEY (partition_key, row_key)
		);
		CREATE INDEX IF NOT EXISTS idx_anomalies_row ON anomalies(partition_key, row_key);

		CREATE TABLE IF NOT EXISTS volumehistory (
			partition_key TEXT NOT NULL,
			row_key       TEXT NOT NULL,
			payload       TEXT NOT NULL,
			PRIMARY KEY (partition_key, row_key)
		);

		CREATE TABLE IF NOT EXISTS flowhistory (
			partition_key TEXT NOT NULL,
			row_key       TEXT NOT NULL,
			payload       TEXT NOT NULL,
			PRIMARY KEY (partition_key, row_key)
		);

		CREATE TABLE IF NOT EXISTS spymarket (
			partition_key TEXT NOT NULL,
			row_key       TEXT NOT NULL,
			payload       TEXT NOT NULL,
			PRIMARY KEY (partition_key, row_key)
		);

		CREATE TABLE IF NOT EXISTS marketstate (
			partition_key TEXT PRIMARY KEY,
			payload       TEXT NOT NULL
		);

		INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`)
	if err != nil {
		return err
	}
	s.log.Info("applied schema v1")
	return nil
}

// const partition used for every table; the system only ever tracks one
// underlying (SPY), so the partition key carries no discriminating value
// beyond matching the original service's table shape.
const partitionSPY = "SPY"

func upsert(db *sql.DB, table, rowKey string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}
	_, err = db.Exec(
		fmt.Sprintf(`INSERT INTO %s (partition_key, row_key, payload) VALUES (?, ?, ?)
			ON CONFLICT(partition_key, row_key) DO UPDATE SET payload = excluded.payload`, table),
		partitionSPY, rowKey, string(payload),
	)
	return err
}

// SaveAnomaly upserts a single anomaly keyed by {ts}_{strike}_{side}
// (spec.md §4.G).
func (s *Store) SaveAnomaly(a contracts.Anomaly) error {
	return upsert(s.db, "anomalies", a.Key(), a)
}

// RecentAnomalies returns up to limit anomalies, newest first.
func (s *Store) RecentAnomalies(limit int) ([]contracts.Anomaly, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM anomalies WHERE partition_key = ? ORDER BY row_key DESC LIMIT ?`,
		partitionSPY, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.Anomaly
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a contracts.Anomaly
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// reversedRowKey turns a millisecond timestamp into a RowKey that sorts
// ascending-by-string in newest-first order.
func reversedRowKey(tsMS int64) string {
	return fmt.Sprintf("%013d", reversedTickCeiling-tsMS)
}

// SaveVolumeSnapshot upserts a volume snapshot, newest-first ordered.
func (s *Store) SaveVolumeSnapshot(v contracts.VolumeSnapshot) error {
	return upsert(s.db, "volumehistory", reversedRowKey(v.TsMS), v)
}

// RecentVolumeSnapshots returns up to limit volume snapshots, newest first.
func (s *Store) RecentVolumeSnapshots(limit int) ([]contracts.VolumeSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM volumehistory WHERE partition_key = ? ORDER BY row_key ASC LIMIT ?`,
		partitionSPY, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.VolumeSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var v contracts.VolumeSnapshot
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveFlowSnapshot upserts a flow snapshot, newest-first ordered.
func (s *Store) SaveFlowSnapshot(f contracts.FlowSnapshot) error {
	return upsert(s.db, "flowhistory", reversedRowKey(f.TsUnix*1000), f)
}

// RecentFlowSnapshots returns up to limit flow snapshots, newest first.
func (s *Store) RecentFlowSnapshots(limit int) ([]contracts.FlowSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM flowhistory WHERE partition_key = ? ORDER BY row_key ASC LIMIT ?`,
		partitionSPY, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.FlowSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var f contracts.FlowSnapshot
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveSpyMarketSnapshot upserts a raw underlying tick, newest-first ordered.
func (s *Store) SaveSpyMarketSnapshot(m contracts.SpyMarketSnapshot) error {
	return upsert(s.db, "spymarket", reversedRowKey(m.TsUnix*1000), m)
}

// SaveMarketState upserts the single mutable MarketState record. The
// marketstate table has no row_key column (one row per symbol), so it
// conflicts on partition_key alone rather than going through upsert().
func (s *Store) SaveMarketState(m contracts.MarketState) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marketstate: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO marketstate (partition_key, payload) VALUES (?, ?)
			ON CONFLICT(partition_key) DO UPDATE SET payload = excluded.payload`,
		partitionSPY, string(payload),
	)
	return err
}

// LoadMarketState returns the current MarketState, or the zero value with
// ok=false if none has been saved yet.
func (s *Store) LoadMarketState() (contracts.MarketState, bool, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM marketstate WHERE partition_key = ?`, partitionSPY).Scan(&payload)
	if err == sql.ErrNoRows {
		return contracts.MarketState{}, false, nil
	}
	if err != nil {
		return contracts.MarketState{}, false, err
	}
	var m contracts.MarketState
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return contracts.MarketState{}, false, err
	}
	return m, true, nil
}
