package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nickandbro/slither-world-sub002/internal/persistence/snapshot"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

// SQLiteIndex mirrors the JSONL tick journal into a queryable sqlite
// database. Writes go through a buffered channel and a single writer
// goroutine; a full channel drops the write, so the JSONL files remain
// the source of truth for replay.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	WorldID    string
	Players    int
	Alive      int
	NextPlayer uint64
	RecordedAt string
}

// QueueStats reports writer-queue pressure for the metrics endpoint.
type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
		// One request per tick plus occasional snapshots; this covers
		// close to an hour of backlog at the default tick rate.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
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
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			inputs INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			PRIMARY KEY (tick, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS inputs (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			input_seq INTEGER NOT NULL,
			boost INTEGER NOT NULL,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_inputs_player_tick ON inputs(player_id, tick);`,
		`CREATE TABLE IF NOT EXISTS admin_ops (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			op TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			players INTEGER NOT NULL,
			alive INTEGER NOT NULL,
			next_player INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

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

// WriteTick implements world.TickJournal.
func (s *SQLiteIndex) WriteTick(entry world.TickEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; the JSONL journal keeps
		// the authoritative record.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	alive := 0
	for _, p := range snap.Players {
		if p.Alive {
			alive++
		}
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		WorldID:    snap.Header.WorldID,
		Players:    len(snap.Players),
		Alive:      alive,
		NextPlayer: snap.Counters.NextPlayer,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// RecordTuning stores the effective tuning as canonical JSON keyed by
// digest. Runs synchronously; callers use it at boot and on retune,
// never from the tick loop.
func (s *SQLiteIndex) RecordTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES('tuning',?,?,?)`,
		digest, string(b), now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,inputs,raw_json) VALUES(?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,player_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,player_id) VALUES(?,?)`)
	insertInput, _ := s.db.Prepare(`INSERT OR REPLACE INTO inputs(tick,seq,player_id,input_seq,boost,cmd_json) VALUES(?,?,?,?,?,?)`)
	insertAdmin, _ := s.db.Prepare(`INSERT OR REPLACE INTO admin_ops(tick,seq,op,player_id) VALUES(?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,players,alive,next_player,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertJoin != nil {
			_ = insertJoin.Close()
		}
		if insertLeave != nil {
			_ = insertLeave.Close()
		}
		if insertInput != nil {
			_ = insertInput.Close()
		}
		if insertAdmin != nil {
			_ = insertAdmin.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.tick.Tick),
					r.tick.Digest,
					len(r.tick.Joins),
					len(r.tick.Leaves),
					len(r.tick.Inputs),
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for _, j := range r.tick.Joins {
				if insertJoin == nil {
					break
				}
				if _, err := tx.Stmt(insertJoin).Exec(int64(r.tick.Tick), int64(j.PlayerID), j.Name); err != nil {
					rollback()
					break
				}
				opCount++
			}
			for _, id := range r.tick.Leaves {
				if insertLeave == nil {
					break
				}
				if _, err := tx.Stmt(insertLeave).Exec(int64(r.tick.Tick), int64(id)); err != nil {
					rollback()
					break
				}
				opCount++
			}
			for i, in := range r.tick.Inputs {
				if insertInput == nil {
					break
				}
				cmdJSON, _ := json.Marshal(in)
				boost := 0
				if in.Boost {
					boost = 1
				}
				if _, err := tx.Stmt(insertInput).Exec(int64(r.tick.Tick), i, int64(in.PlayerID), int64(in.Seq), boost, string(cmdJSON)); err != nil {
					rollback()
					break
				}
				opCount++
			}
			for i, a := range r.tick.Admin {
				if insertAdmin == nil {
					break
				}
				if _, err := tx.Stmt(insertAdmin).Exec(int64(r.tick.Tick), i, a.Op, int64(a.PlayerID)); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Tick),
					sn.Path,
					sn.WorldID,
					sn.Players,
					sn.Alive,
					int64(sn.NextPlayer),
					sn.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
