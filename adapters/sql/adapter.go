package sql

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/preslavrachev/gom/config"
	"github.com/preslavrachev/gom/core"
)

// Config holds the settings of an Adapter
type Config struct {
	// Driver is a database/sql driver name: sqlite3, sqlite, pgx or postgres
	Driver string
	// DSN is the connection target, e.g. ":memory:", "app.db" or a postgres URL
	DSN string
	// Debug enables statement logging
	Debug bool
	// JournalMode is applied to file-backed SQLite databases
	JournalMode string
	// BusyTimeout is applied to SQLite databases
	BusyTimeout time.Duration
}

// FromConfig converts the application configuration into adapter settings
func FromConfig(cfg *config.Config) Config {
	return Config{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		Debug:       cfg.DebugEnabled,
		JournalMode: cfg.Database.JournalMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	}
}

type adapterState int

const (
	stateNew adapterState = iota
	stateOpen
	stateClosed
)

// Adapter implements the core.Adapter interface over a single database
// connection. Queued tasks run one at a time on a dedicated goroutine, in
// the order they were enqueued.
type Adapter struct {
	cfg    Config
	logger *SQLLogger

	mu     sync.Mutex
	cond   *sync.Cond
	state  adapterState
	queue  []core.Task
	driver driver
	db     *sqlx.DB
	conn   *sqlx.Conn
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// New creates an adapter. No connection is made until Open.
func New(cfg Config) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		logger: NewSQLLogger(cfg.Debug),
	}
	a.cond = sync.NewCond(&a.mu)
	if d, ok := lookupDriver(cfg.Driver); ok {
		a.driver = d
	}
	return a
}

// Open connects to the backend and starts the worker. Opening an open
// adapter does nothing; a closed adapter cannot be reopened.
func (a *Adapter) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateOpen:
		return nil
	case stateClosed:
		return core.Errorf(core.CodeClosed, "adapter is closed")
	}

	d, ok := lookupDriver(a.cfg.Driver)
	if !ok {
		return core.Errorf(core.CodeConnection, "unknown driver %q (supported: %s)",
			a.cfg.Driver, strings.Join(Drivers(), ", "))
	}
	if strings.TrimSpace(a.cfg.DSN) == "" {
		return core.Errorf(core.CodeConnection, "empty connection target for driver %s", a.cfg.Driver)
	}

	db, err := sqlx.Open(a.cfg.Driver, a.cfg.DSN)
	if err != nil {
		return core.NewError(core.CodeConnection, fmt.Sprintf("open %s", a.cfg.Driver), err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Connx(ctx)
	if err != nil {
		db.Close()
		return core.NewError(core.CodeConnection, fmt.Sprintf("connect %s", a.cfg.Driver), err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return core.NewError(core.CodeConnection, fmt.Sprintf("ping %s", a.cfg.Driver), err)
	}

	if d.dialect == SQLite {
		if err := a.applyPragmas(ctx, conn); err != nil {
			conn.Close()
			db.Close()
			return core.NewError(core.CodeConnection, "configure sqlite", err)
		}
	}

	a.driver = d
	a.db = db
	a.conn = conn
	a.ctx, a.cancel = context.WithCancelCause(context.Background())
	a.done = make(chan struct{})
	a.state = stateOpen
	go a.work()

	a.logger.LogEvent("", fmt.Sprintf("opened %s connection to %s", a.cfg.Driver, a.cfg.DSN))
	return nil
}

func (a *Adapter) applyPragmas(ctx context.Context, conn *sqlx.Conn) error {
	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if a.cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", a.cfg.BusyTimeout.Milliseconds()))
	}
	if a.cfg.JournalMode != "" && !isMemoryDSN(a.cfg.DSN) {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA journal_mode = %s", a.cfg.JournalMode))
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

// IsOpen reports whether the adapter is open
func (a *Adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == stateOpen
}

// SetDebugEnabled enables or disables SQL debug logging
func (a *Adapter) SetDebugEnabled(enabled bool) {
	a.logger.SetEnabled(enabled)
}

// Dialect implements core.Adapter
func (a *Adapter) Dialect() core.Dialect {
	if a.driver.dialect == nil {
		return nil
	}
	return a.driver.dialect
}

// Enqueue implements core.Adapter
func (a *Adapter) Enqueue(task core.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateNew:
		return core.Errorf(core.CodeConnection, "adapter is not open")
	case stateClosed:
		return core.Errorf(core.CodeClosed, "adapter is closed")
	}
	a.queue = append(a.queue, task)
	a.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks that have not started
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Execute runs a raw statement and returns its rows
func (a *Adapter) Execute(ctx context.Context, query string, args ...any) (*core.RowSet, error) {
	return a.ExecuteAsync(query, args...).Wait(ctx)
}

// ExecuteAsync is the non-blocking form of Execute
func (a *Adapter) ExecuteAsync(query string, args ...any) *core.Operation[*core.RowSet] {
	return core.Schedule(a, func(ctx context.Context, conn core.Conn) (*core.RowSet, error) {
		return conn.Query(ctx, query, args...)
	})
}

// Close fails every queued task with ErrClosed, cancels the running task,
// waits for it to return and releases the connection. Closing twice is a
// no-op.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return nil
	}
	wasOpen := a.state == stateOpen
	a.state = stateClosed
	pending := a.queue
	a.queue = nil
	a.cond.Broadcast()
	a.mu.Unlock()

	for _, task := range pending {
		task.Abort(core.Errorf(core.CodeClosed, "adapter closed before the operation started"))
	}
	if len(pending) > 0 {
		a.logger.LogEvent("", fmt.Sprintf("dropped %d queued operations on close", len(pending)))
	}
	if !wasOpen {
		return nil
	}

	a.cancel(core.ErrClosed)
	<-a.done

	var errs []error
	if err := a.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}
	a.logger.LogEvent("", fmt.Sprintf("closed %s connection", a.cfg.Driver))
	if len(errs) > 0 {
		return core.NewError(core.CodeConnection, "close connection", errs[0])
	}
	return nil
}

// work runs queued tasks until the adapter closes
func (a *Adapter) work() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.queue) == 0 && a.state == stateOpen {
			a.cond.Wait()
		}
		if a.state != stateOpen {
			a.mu.Unlock()
			return
		}
		task := a.queue[0]
		a.queue[0] = nil
		a.queue = a.queue[1:]
		a.mu.Unlock()

		if !task.Begin() {
			continue
		}
		a.run(task)
	}
}

func (a *Adapter) run(task core.Task) {
	opID := ""
	if t, ok := task.(interface{ ID() string }); ok {
		opID = t.ID()
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.LogEvent(opID, fmt.Sprintf("operation panicked: %v", r))
			task.Abort(core.Errorf(core.CodeQuery, "operation panicked: %v", r))
		}
	}()

	task.Run(a.ctx, &conn{
		opID:   opID,
		driver: a.driver,
		logger: a.logger,
		raw:    a.conn,
		ext:    a.conn,
	})
}
