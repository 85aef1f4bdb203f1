package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	foundBlockQueueDepth       = 64
	recentFoundBlocksAtStartup = 5
	ledgerFileName             = "bridge.db"

	blockStatusSubmitted = "submitted"
	blockStatusFailed    = "failed"
)

// foundBlockRecord is one row of the found_blocks table.
type foundBlockRecord struct {
	Hash       string
	Instance   int
	Worker     string
	WorkerHash string
	JobID      uint64
	DAAScore   uint64
	BlueScore  uint64
	Nonce      uint64
	Status     string
	Error      string
	FoundAt    time.Time
}

// foundBlockLedger appends found blocks to sqlite from a background
// goroutine so the submit path never waits on disk.
type foundBlockLedger struct {
	db   *sql.DB
	ch   chan foundBlockRecord
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func ledgerPathFromDataDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = defaultDataDir
	}
	return filepath.Join(dir, ledgerFileName)
}

func openFoundBlockLedger(path string) (*foundBlockLedger, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_foreign_keys=1&_journal=WAL")
	if err != nil {
		return nil, err
	}
	// modernc sqlite does not like concurrent writers on one file.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS found_blocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			found_at_unix INTEGER NOT NULL,
			hash TEXT NOT NULL,
			instance INTEGER NOT NULL,
			worker TEXT NOT NULL,
			worker_hash TEXT NOT NULL,
			job_id INTEGER NOT NULL,
			daa_score INTEGER NOT NULL,
			blue_score INTEGER NOT NULL,
			nonce TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS found_blocks_hash_idx ON found_blocks (hash)`); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &foundBlockLedger{
		db:   db,
		ch:   make(chan foundBlockRecord, foundBlockQueueDepth),
		done: make(chan struct{}),
	}
	go l.run()
	return l, nil
}

func (l *foundBlockLedger) run() {
	defer close(l.done)
	for rec := range l.ch {
		if err := l.insert(rec); err != nil {
			logger.Warn("found block sqlite insert", "component", "ledger", "hash", rec.Hash, "error", err)
		}
	}
}

func (l *foundBlockLedger) insert(rec foundBlockRecord) error {
	if rec.FoundAt.IsZero() {
		rec.FoundAt = time.Now()
	}
	if rec.WorkerHash == "" {
		rec.WorkerHash = workerNameHash(rec.Worker)
	}
	// Nonces are stored as hex text; sqlite integers are signed.
	_, err := l.db.Exec(`INSERT INTO found_blocks
		(found_at_unix, hash, instance, worker, worker_hash, job_id, daa_score, blue_score, nonce, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FoundAt.Unix(), rec.Hash, rec.Instance, rec.Worker, rec.WorkerHash,
		int64(rec.JobID), int64(rec.DAAScore), int64(rec.BlueScore),
		formatNonce(rec.Nonce), rec.Status, rec.Error)
	return err
}

// Record queues rec for insertion. A full queue drops the row with a warning
// rather than stall a miner.
func (l *foundBlockLedger) Record(rec foundBlockRecord) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- rec:
	default:
		logger.Warn("found block ledger queue full; dropping row", "component", "ledger", "hash", rec.Hash)
	}
}

// Recent returns up to limit rows, newest first.
func (l *foundBlockLedger) Recent(limit int) ([]foundBlockRecord, error) {
	if l == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.Query(`SELECT found_at_unix, hash, instance, worker, worker_hash, job_id, daa_score, blue_score, nonce, status, error
		FROM found_blocks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []foundBlockRecord
	for rows.Next() {
		var (
			rec                       foundBlockRecord
			foundAt, jobID, daa, blue int64
			nonceHex                  string
		)
		if err := rows.Scan(&foundAt, &rec.Hash, &rec.Instance, &rec.Worker, &rec.WorkerHash, &jobID, &daa, &blue, &nonceHex, &rec.Status, &rec.Error); err != nil {
			return nil, err
		}
		rec.FoundAt = time.Unix(foundAt, 0)
		rec.JobID = uint64(jobID)
		rec.DAAScore = uint64(daa)
		rec.BlueScore = uint64(blue)
		rec.Nonce, _ = parseNonceHex(nonceHex)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// logRecentFoundBlocks prints the last few ledger rows at startup and
// returns how many were printed.
func logRecentFoundBlocks(l *foundBlockLedger, limit int) int {
	rows, err := l.Recent(limit)
	if err != nil {
		logger.Warn("read found-block ledger", "component", "blocks", "error", err)
		return 0
	}
	for _, rec := range rows {
		logger.Info("previous found block",
			"component", "blocks",
			"hash", rec.Hash,
			"instance", rec.Instance,
			"worker", rec.Worker,
			"status", rec.Status,
			"age", formatUptime(time.Since(rec.FoundAt)),
		)
	}
	return len(rows)
}

// Close drains queued rows and closes the database.
func (l *foundBlockLedger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()
	<-l.done
	return l.db.Close()
}
