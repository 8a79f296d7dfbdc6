// Package journal persists hop outcomes to a SQLite-backed append log
// and implements the no-immediate-duplicate-IP predicate.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"chaosbot.dev/chaos-bot/internal/clock"
)

// Record is one persisted hop outcome.
type Record struct {
	ID          int64     `json:"id"`
	VlanID      int       `json:"vlan_id"`
	IP          string    `json:"ip"`
	MAC         string    `json:"mac"`
	Timestamp   time.Time `json:"timestamp"`
	ModulesRun  []string  `json:"modules_run"`
	DurationSec float64   `json:"duration_sec"`
}

// Journal is the Lease Journal: a serialized-writer, concurrent-reader
// append log over a single `leases` table.
type Journal struct {
	db    *sql.DB
	mu    sync.Mutex // serializes writes; reads go through db's own pool
	clock clock.Clock
}

// Options configures a Journal.
type Options struct {
	Path  string      // file path, or ":memory:" for tests
	Clock clock.Clock // defaults to RealClock
}

// Open creates or attaches to the lease journal database, enabling WAL
// mode for concurrent reader access while writes are serialized by mu.
func Open(opts Options) (*Journal, error) {
	dsn := opts.Path
	if opts.Path != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening lease journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to lease journal: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = &clock.RealClock{}
	}

	j := &Journal{db: db, clock: clk}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS leases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vlan_id INTEGER NOT NULL,
	ip TEXT NOT NULL,
	mac TEXT,
	timestamp TEXT NOT NULL,
	modules_run TEXT NOT NULL,
	duration_sec REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leases_vlan_id ON leases(vlan_id);
CREATE INDEX IF NOT EXISTS idx_leases_ip ON leases(ip);
`
	_, err := j.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("initializing lease journal schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append inserts a new lease record and returns its id. It commits
// before returning, so a subsequent IsImmediateDuplicate or History
// call on any connection observes it.
func (j *Journal) Append(vlanID int, ip, mac string, modulesRun []string, durationSec float64) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	modulesJSON, err := json.Marshal(modulesRun)
	if err != nil {
		return 0, fmt.Errorf("encoding modules_run: %w", err)
	}

	ts := j.clock.Now().UTC().Format(time.RFC3339)
	res, err := j.db.Exec(
		`INSERT INTO leases (vlan_id, ip, mac, timestamp, modules_run, duration_sec) VALUES (?, ?, ?, ?, ?, ?)`,
		vlanID, ip, mac, ts, string(modulesJSON), roundTenth(durationSec),
	)
	if err != nil {
		return 0, fmt.Errorf("appending lease record: %w", err)
	}
	return res.LastInsertId()
}

// IsImmediateDuplicate is true iff the single most recent record for
// vlanID has exactly this ip. It never scans beyond that one record.
func (j *Journal) IsImmediateDuplicate(vlanID int, ip string) (bool, error) {
	var lastIP string
	err := j.db.QueryRow(
		`SELECT ip FROM leases WHERE vlan_id = ? ORDER BY id DESC LIMIT 1`,
		vlanID,
	).Scan(&lastIP)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking duplicate: %w", err)
	}
	return lastIP == ip, nil
}

// History returns the most-recent-first records, optionally filtered
// by vlanID (nil means all VLANs), limited post-filter.
func (j *Journal) History(vlanID *int, limit int) ([]Record, error) {
	var rows *sql.Rows
	var err error
	if vlanID != nil {
		rows, err = j.db.Query(
			`SELECT id, vlan_id, ip, mac, timestamp, modules_run, duration_sec FROM leases WHERE vlan_id = ? ORDER BY id DESC LIMIT ?`,
			*vlanID, limit,
		)
	} else {
		rows, err = j.db.Query(
			`SELECT id, vlan_id, ip, mac, timestamp, modules_run, duration_sec FROM leases ORDER BY id DESC LIMIT ?`,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var ts, modulesJSON string
		if err := rows.Scan(&r.ID, &r.VlanID, &r.IP, &r.MAC, &ts, &modulesJSON, &r.DurationSec); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		_ = json.Unmarshal([]byte(modulesJSON), &r.ModulesRun)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Clear removes all records and returns the count removed.
func (j *Journal) Clear() (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(`DELETE FROM leases`)
	if err != nil {
		return 0, fmt.Errorf("clearing lease journal: %w", err)
	}
	return res.RowsAffected()
}

func roundTenth(d float64) float64 {
	return float64(int64(d*10+0.5)) / 10
}
