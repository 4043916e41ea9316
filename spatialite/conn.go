package spatialite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tobyn/gaiaq/geo"
	"github.com/tobyn/gaiaq/schema"
)

// Conn is a SpatiaLite-backed database handle. The pool is pinned to one
// underlying connection, so per-connection spatial state is per-Conn
// state. Conn is safe for concurrent use.
type Conn struct {
	db     *sql.DB
	schema *schema.Set
	log    *zap.Logger

	ready    sync.Once
	readyErr error
	// bootstrap runs inside ready. Replaced in tests.
	bootstrap func(ctx context.Context) error

	mu    sync.Mutex
	state ConnectionSpatialState
}

// ConnectionSpatialState records what EnsureReady and ApplySchema have
// established for one connection.
type ConnectionSpatialState struct {
	// ExtensionReady is set once the version probe succeeds.
	ExtensionReady bool
	// Version is the loaded extension's version string.
	Version string
	// Columns maps validated "table.column" keys to their SRIDs.
	Columns map[string]int32
}

// Option configures Open.
type Option func(*options)

type options struct {
	schema  *schema.Set
	logger  *zap.Logger
	library string
}

// WithSchema attaches the declared schema that EnsureReady validates
// against and Select compiles filters with.
func WithSchema(set *schema.Set) Option {
	return func(o *options) { o.schema = set }
}

// WithLogger routes diagnostics to the given logger instead of
// discarding them.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithLibrary loads the extension from one specific shared library
// instead of trying the default candidates.
func WithLibrary(path string) Option {
	return func(o *options) { o.library = path }
}

// Open opens or creates the database at path.
//
// The pool is pinned to a single connection and configured with WAL
// journaling, NORMAL synchronous mode, a 5 second busy timeout and
// foreign key enforcement. Open does not touch spatial metadata; that is
// EnsureReady's job.
func Open(path string, opts ...Option) (*Conn, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	registerDriver()
	if o.library != "" {
		setLibraryOverride(o.library)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, eris.Wrap(err, "spatialite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "spatialite: connect")
	}

	// One writer avoids SQLITE_BUSY and keeps the loaded extension on
	// the single connection every statement uses.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "spatialite: exec %s", pragma)
		}
	}

	c := &Conn{
		db:     db,
		schema: o.schema,
		log:    o.logger,
		state:  ConnectionSpatialState{Columns: make(map[string]int32)},
	}
	c.bootstrap = c.doBootstrap
	return c, nil
}

// Close releases the underlying database.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB exposes the underlying pool for statements this package does not
// wrap, inserts in particular.
func (c *Conn) DB() *sql.DB { return c.db }

// EnsureReady probes the extension, initializes spatial metadata when
// absent and validates every declared geometry column. The first caller
// does the work; every later and concurrent caller observes the same
// stored result. A failure is fatal for the Conn and is never retried.
func (c *Conn) EnsureReady(ctx context.Context) error {
	c.ready.Do(func() {
		c.readyErr = c.bootstrap(ctx)
	})
	return c.readyErr
}

// State returns a snapshot of the connection's spatial state. The
// snapshot is a copy; mutating it does not touch the Conn.
func (c *Conn) State() ConnectionSpatialState {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.state
	snap.Columns = make(map[string]int32, len(c.state.Columns))
	for k, v := range c.state.Columns {
		snap.Columns[k] = v
	}
	return snap
}

func (c *Conn) doBootstrap(ctx context.Context) error {
	version, err := c.probe(ctx)
	if err != nil {
		return err
	}
	c.log.Debug("spatialite loaded", zap.String("version", version))

	if err := c.initMetadata(ctx); err != nil {
		return err
	}
	validated, err := c.validateColumns(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.state.ExtensionReady = true
	c.state.Version = version
	c.state.Columns = validated
	c.mu.Unlock()
	return nil
}

// probe asks the loaded extension for its version. Failure means the
// ConnectHook could not load any candidate library.
func (c *Conn) probe(ctx context.Context) (string, error) {
	var version string
	err := c.db.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version)
	if err != nil {
		cause := loadErr()
		if cause == nil {
			cause = err
		}
		return "", NewExtensionLoadError(libraryCandidates(), cause)
	}
	return version, nil
}

// initMetadata creates spatial_ref_sys and geometry_columns when the
// database has neither. InitSpatialMetaData(1) runs its inserts in one
// transaction.
func (c *Conn) initMetadata(ctx context.Context) error {
	var name string
	err := c.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'spatial_ref_sys'",
	).Scan(&name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return eris.Wrap(err, "spatialite: inspect schema")
	}

	c.log.Debug("initializing spatial metadata")
	if _, err := c.db.ExecContext(ctx, "SELECT InitSpatialMetaData(1)"); err != nil {
		return eris.Wrap(err, "spatialite: init spatial metadata")
	}
	return nil
}

// validateColumns checks every declared geometry column: the SRID must
// exist in spatial_ref_sys, and a row already registered in
// geometry_columns must agree with the declaration.
func (c *Conn) validateColumns(ctx context.Context) (map[string]int32, error) {
	validated := make(map[string]int32)
	if c.schema == nil {
		return validated, nil
	}

	cols := c.schema.Columns()
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Table != cols[j].Table {
			return cols[i].Table < cols[j].Table
		}
		return cols[i].Name < cols[j].Name
	})

	for _, col := range cols {
		key := col.Table + "." + col.Name

		var n int
		err := c.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM spatial_ref_sys WHERE srid = ?", col.SRID,
		).Scan(&n)
		if err != nil {
			return nil, eris.Wrapf(err, "spatialite: look up srid %d", col.SRID)
		}
		if n == 0 {
			return nil, NewUnknownSridError(col.SRID, key)
		}

		if err := c.checkRegistered(ctx, col, key); err != nil {
			return nil, err
		}
		validated[key] = col.SRID
	}
	return validated, nil
}

// checkRegistered compares an existing geometry_columns row against the
// declaration. Absence is fine; ApplySchema registers missing columns.
func (c *Conn) checkRegistered(ctx context.Context, col schema.Column, key string) error {
	var (
		srid    int32
		geoType any
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT srid, geometry_type FROM geometry_columns
		 WHERE f_table_name = ? AND f_geometry_column = ?`,
		schema.Canonical(col.Table), schema.Canonical(col.Name),
	).Scan(&srid, &geoType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "spatialite: look up geometry column %s", key)
	}

	if srid != col.SRID {
		return fmt.Errorf("spatialite: %s is registered with srid %d, declared %d", key, srid, col.SRID)
	}
	if typ, ok := registeredType(geoType); ok && typ != col.Type {
		return fmt.Errorf("spatialite: %s is registered as %s, declared %s", key, typ, col.Type)
	}
	return nil
}

// registeredType maps a geometry_columns type value to the variant it
// names. Current metadata stores an integer code whose low digits are the
// variant and whose thousands digit encodes extra dimensions; older
// layouts stored the name as text.
func registeredType(v any) (geo.Type, bool) {
	switch t := v.(type) {
	case int64:
		code := t % 1000
		if code >= 1 && code <= 7 {
			return geo.Type(code), true
		}
	case string:
		return geo.TypeFromName(t)
	case []byte:
		return geo.TypeFromName(string(t))
	}
	return 0, false
}

// SpatialRef is one spatial_ref_sys row.
type SpatialRef struct {
	SRID     int32
	AuthName string
	AuthSRID int32
	Name     string
	Proj4    string
}

// SpatialRef looks up a reference system. A missing SRID comes back as
// *UnknownSridError.
func (c *Conn) SpatialRef(ctx context.Context, srid int32) (SpatialRef, error) {
	if err := c.EnsureReady(ctx); err != nil {
		return SpatialRef{}, err
	}
	var ref SpatialRef
	err := c.db.QueryRowContext(ctx,
		`SELECT srid, auth_name, auth_srid, ref_sys_name, proj4text
		 FROM spatial_ref_sys WHERE srid = ?`, srid,
	).Scan(&ref.SRID, &ref.AuthName, &ref.AuthSRID, &ref.Name, &ref.Proj4)
	if errors.Is(err, sql.ErrNoRows) {
		return SpatialRef{}, NewUnknownSridError(srid, "")
	}
	if err != nil {
		return SpatialRef{}, eris.Wrapf(err, "spatialite: look up srid %d", srid)
	}
	return ref, nil
}
