// Package indexdb keeps a queryable SQLite index of runs, days and snapshots.
// The JSONL day logs remain the source of truth; the index may drop entries
// when its writer falls behind.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/persistence/snapshot"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/plant"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropDay      atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqDay reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	day      plant.DayRecord
	snapshot snapshotRow
}

type snapshotRow struct {
	RunID  string
	Day    int
	Path   string
	Digest string
	Organs int
}

// Stats reports how many writes never reached the index: rejected by a full
// queue, or lost with a transaction that failed to insert or commit.
type Stats struct {
	DropDayTotal      uint64
	DropSnapshotTotal uint64
	QueueDepth        int
	QueueCapacity     int
}

// RunSummary is one row of Runs.
type RunSummary struct {
	RunID      string
	StartedAt  string
	Days       int
	LastDay    int
	LastDigest string
	Snapshots  int
}

// DayRow is one indexed day.
type DayRow struct {
	Day        int
	Digest     string
	LeafLiveWt float64
	LeafN      float64
	LAI        float64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			tuning_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS days (
			run_id TEXT NOT NULL,
			day INTEGER NOT NULL,
			digest TEXT NOT NULL,
			leaf_live_wt REAL NOT NULL,
			leaf_n REAL NOT NULL,
			lai REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, day)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			day INTEGER NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			organs INTEGER NOT NULL,
			PRIMARY KEY (run_id, day)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropDayTotal:      s.dropDay.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
	}
}

// BeginRun records the run synchronously. It is called once before the
// first day so day rows always have a parent run.
func (s *SQLiteIndex) BeginRun(runID string, tuningJSON []byte) error {
	if s == nil {
		return nil
	}
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO runs(run_id,started_at,tuning_json) VALUES(?,?,?)`,
		runID, now, string(tuningJSON))
	return err
}

func (s *SQLiteIndex) WriteDay(rec plant.DayRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqDay, day: rec}:
	default:
		s.dropDay.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		RunID:  snap.Header.RunID,
		Day:    snap.Header.Day,
		Path:   path,
		Digest: snap.Header.Digest,
		Organs: len(snap.Organs),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Runs lists every indexed run, oldest first.
func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.started_at,
			(SELECT COUNT(*) FROM days d WHERE d.run_id = r.run_id),
			COALESCE((SELECT MAX(day) FROM days d WHERE d.run_id = r.run_id), 0),
			COALESCE((SELECT digest FROM days d WHERE d.run_id = r.run_id ORDER BY day DESC LIMIT 1), ''),
			(SELECT COUNT(*) FROM snapshots sn WHERE sn.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at, r.run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Days, &r.LastDay, &r.LastDigest, &r.Snapshots); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Days returns the indexed days of one run in day order.
func (s *SQLiteIndex) Days(ctx context.Context, runID string) ([]DayRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, digest, leaf_live_wt, leaf_n, lai FROM days WHERE run_id = ? ORDER BY day`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayRow
	for rows.Next() {
		var r DayRow
		if err := rows.Scan(&r.Day, &r.Digest, &r.LeafLiveWt, &r.LeafN, &r.LAI); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertDay, _ := s.db.Prepare(`INSERT OR REPLACE INTO days(run_id,day,digest,leaf_live_wt,leaf_n,lai,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,day,path,digest,organs) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertDay != nil {
			_ = insertDay.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		pendDays      uint64
		pendSnapshots uint64
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	// lost moves the rows of an abandoned tx into the drop counters.
	lost := func() {
		s.dropDay.Add(pendDays)
		s.dropSnapshot.Add(pendSnapshots)
	}
	reset := func() {
		tx = nil
		opCount = 0
		pendDays, pendSnapshots = 0, 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			lost()
		}
		reset()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		lost()
		reset()
	}
	dropOne := func(k reqKind) {
		if k == reqSnapshot {
			s.dropSnapshot.Add(1)
		} else {
			s.dropDay.Add(1)
		}
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			// An idle writer must not hold the only connection inside a tx.
			flushIfNeeded()
			continue
		}

		begin()
		if tx == nil {
			dropOne(r.kind)
			continue
		}
		switch r.kind {
		case reqDay:
			d := r.day
			raw, _ := json.Marshal(d)
			if insertDay != nil {
				if _, err := tx.Stmt(insertDay).Exec(
					d.RunID,
					d.Day,
					d.Digest,
					d.Leaf.Live.Wt(),
					d.Leaf.Live.N(),
					d.Leaf.LAI,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.RunID,
					sn.Day,
					sn.Path,
					sn.Digest,
					sn.Organs,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}
}
