package recording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	// SQLite driver, used through database/sql.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/dr-isosan/LifeNode/core"
	"github.com/dr-isosan/LifeNode/internal/logging"
	"github.com/dr-isosan/LifeNode/model"
)

// Recorder persists tick accounting and terminal packets for offline
// analysis.
type Recorder interface {
	RecordTick(report core.TickReport) error
	RecordPacket(p *model.Packet) error
	Flush() error
	Close() error
}

// NullRecorder discards everything. It stands in when recording is off so
// callers never branch.
type NullRecorder struct{}

func (NullRecorder) RecordTick(core.TickReport) error { return nil }
func (NullRecorder) RecordPacket(*model.Packet) error { return nil }
func (NullRecorder) Flush() error                     { return nil }
func (NullRecorder) Close() error                     { return nil }

const defaultBatchSize = 1024

// SQLiteRecorder buffers rows in memory and writes them to a SQLite file in
// batched transactions.
type SQLiteRecorder struct {
	mu        sync.Mutex
	db        *sql.DB
	path      string
	logger    logging.Logger
	batchSize int

	ticks   []core.TickReport
	packets []*model.Packet
}

// NewSQLite opens a fresh database at path, creating the schema. An empty
// path picks a unique lifenode_<id>.db in the working directory. The file
// must not already exist. A flush is registered for process exit.
func NewSQLite(path string, logger logging.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = logging.Noop()
	}
	if path == "" {
		path = "lifenode_" + xid.New().String() + ".db"
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("recording file %s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open recording db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create recording schema: %w", err)
	}

	r := &SQLiteRecorder{
		db:        db,
		path:      path,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			logger.Warn(context.Background(), "recording flush at exit failed", logging.Err(err))
		}
	})

	logger.Info(context.Background(), "recording to sqlite", logging.String("path", path))
	return r, nil
}

const schemaSQL = `
CREATE TABLE ticks (
	tick INTEGER PRIMARY KEY,
	failure_rate REAL NOT NULL,
	failed_nodes INTEGER NOT NULL,
	repaired_nodes INTEGER NOT NULL,
	advanced INTEGER NOT NULL,
	delivered INTEGER NOT NULL,
	lost INTEGER NOT NULL,
	timed_out INTEGER NOT NULL,
	active_nodes INTEGER NOT NULL,
	in_flight INTEGER NOT NULL,
	duration_us INTEGER NOT NULL
);
CREATE TABLE packets (
	id INTEGER PRIMARY KEY,
	source INTEGER NOT NULL,
	destination INTEGER NOT NULL,
	status TEXT NOT NULL,
	loss_reason TEXT NOT NULL,
	hops INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	reward REAL NOT NULL,
	created_tick INTEGER NOT NULL,
	terminal_tick INTEGER NOT NULL,
	path TEXT NOT NULL
);`

// Path reports the database file location.
func (r *SQLiteRecorder) Path() string { return r.path }

// RecordTick buffers one tick row.
func (r *SQLiteRecorder) RecordTick(report core.TickReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, report)
	return r.maybeFlushLocked()
}

// RecordPacket buffers one packet row. Callers pass terminal packets; the
// row is written with whatever state the packet holds at flush time.
func (r *SQLiteRecorder) RecordPacket(p *model.Packet) error {
	if p == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, p)
	return r.maybeFlushLocked()
}

func (r *SQLiteRecorder) maybeFlushLocked() error {
	if len(r.ticks)+len(r.packets) < r.batchSize {
		return nil
	}
	return r.flushLocked()
}

// Flush writes all buffered rows in one transaction. Buffers are kept on
// failure so a later flush can retry.
func (r *SQLiteRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *SQLiteRecorder) flushLocked() error {
	if r.db == nil || (len(r.ticks) == 0 && len(r.packets) == 0) {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin recording tx: %w", err)
	}

	if err := insertTicks(tx, r.ticks); err != nil {
		tx.Rollback()
		return err
	}
	if err := insertPackets(tx, r.packets); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recording tx: %w", err)
	}

	r.ticks = nil
	r.packets = nil
	return nil
}

func insertTicks(tx *sql.Tx, ticks []core.TickReport) error {
	if len(ticks) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO ticks VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for _, tk := range ticks {
		_, err := stmt.Exec(
			tk.Tick,
			tk.FailureRate,
			len(tk.Failed),
			len(tk.Repaired),
			tk.Advanced,
			tk.Delivered,
			tk.Lost,
			tk.TimedOut,
			tk.ActiveNodes,
			tk.InFlight,
			tk.Duration.Microseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert tick %d: %w", tk.Tick, err)
		}
	}
	return nil
}

func insertPackets(tx *sql.Tx, packets []*model.Packet) error {
	if len(packets) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO packets VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare packet insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range packets {
		_, err := stmt.Exec(
			p.ID,
			p.Source,
			p.Destination,
			p.Status.String(),
			string(p.LossReason),
			p.Hops,
			p.LatencyMs,
			p.Reward,
			p.CreatedTick,
			p.TerminalTick,
			joinPath(p.Path),
		)
		if err != nil {
			return fmt.Errorf("insert packet %d: %w", p.ID, err)
		}
	}
	return nil
}

func joinPath(path []int) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// Close flushes pending rows and releases the database handle. Further
// records are dropped.
func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	flushErr := r.flushLocked()
	closeErr := r.db.Close()
	r.db = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
