// Package spatialite opens SQLite databases with the SpatiaLite extension
// loaded and validates that the geometry columns a schema declares exist
// with the reference systems it claims.
//
// The extension is loaded through a dedicated driver, registered once per
// process, whose ConnectHook runs on every new low-level connection. Load
// failures are surfaced by EnsureReady rather than at Open so callers get
// a typed *ExtensionLoadError naming the candidate libraries tried.
package spatialite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver this package registers.
const driverName = "sqlite3_gaiaq"

// EnvLibrary names the environment variable that overrides the shared
// library candidate list with a single path.
const EnvLibrary = "GAIAQ_SPATIALITE_LIB"

// defaultCandidates are the SpatiaLite library names tried in order. The
// bare name lets the dynamic loader append the platform suffix.
var defaultCandidates = []string{
	"mod_spatialite",
	"mod_spatialite.so",
	"mod_spatialite.dylib",
	"libspatialite.so.7",
}

var (
	registerOnce sync.Once

	loadMu      sync.Mutex
	libOverride string
	lastLoadErr error
)

// registerDriver installs the driver exactly once for the process.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: loadSpatialite,
		})
	})
}

// libraryCandidates resolves the load order: an Open option wins, then the
// environment, then the defaults.
func libraryCandidates() []string {
	loadMu.Lock()
	override := libOverride
	loadMu.Unlock()
	if override != "" {
		return []string{override}
	}
	if env := os.Getenv(EnvLibrary); env != "" {
		return []string{env}
	}
	return defaultCandidates
}

// setLibraryOverride points the ConnectHook at one library. It applies to
// connections opened after the call; Open sets it before its first Ping
// forces the underlying connection into existence.
func setLibraryOverride(lib string) {
	loadMu.Lock()
	libOverride = lib
	loadMu.Unlock()
}

// loadSpatialite tries each candidate library on a fresh connection. A
// failure is recorded rather than returned so the connection still opens
// and EnsureReady can report it as a typed error.
func loadSpatialite(conn *sqlite3.SQLiteConn) error {
	var errs []error
	for _, lib := range libraryCandidates() {
		err := conn.LoadExtension(lib, "")
		if err == nil {
			recordLoadErr(nil)
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", lib, err))
	}
	recordLoadErr(errors.Join(errs...))
	return nil
}

func recordLoadErr(err error) {
	loadMu.Lock()
	lastLoadErr = err
	loadMu.Unlock()
}

// loadErr returns the most recent ConnectHook failure, nil after a
// successful load.
func loadErr() error {
	loadMu.Lock()
	defer loadMu.Unlock()
	return lastLoadErr
}
