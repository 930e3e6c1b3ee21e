// Package discovery finds the port of the editor's command endpoint by reading
// the marker file the editor writes at startup.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MarkerFileName is the name of the shared temp-dir marker.
const MarkerFileName = "luke_editor_mcp_port.txt"

// SharedMarkerPath is where the editor extension writes the shared marker,
// independent of TMPDIR.
const SharedMarkerPath = "/tmp/" + MarkerFileName

// Endpoint is a discovered editor port and the marker it was read from.
type Endpoint struct {
	Port   int
	Source string
}

// Locator probes an ordered list of marker files.
type Locator struct {
	candidates []string
	logger     *slog.Logger
}

// LocatorConfig configures a Locator.
type LocatorConfig struct {
	Candidates []string // probe order; defaults to DefaultCandidates()
	Logger     *slog.Logger
}

// NewLocator creates a locator. An empty candidate list uses DefaultCandidates.
func NewLocator(cfg LocatorConfig) *Locator {
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = DefaultCandidates()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Locator{candidates: cfg.Candidates, logger: cfg.Logger}
}

// DefaultCandidates returns the marker locations written by the editor
// extension: the two VS Code global-storage paths, then /tmp, then the
// process temp dir when TMPDIR points elsewhere.
func DefaultCandidates() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".vscode", "extensions", "globalStorage", "mcp_port.txt"),
			filepath.Join(home, ".config", "Code", "User", "globalStorage", "mcp_port.txt"),
		)
	}
	paths = append(paths, SharedMarkerPath)
	if tmp := filepath.Join(os.TempDir(), MarkerFileName); tmp != SharedMarkerPath {
		paths = append(paths, tmp)
	}
	return paths
}

// Candidates returns a copy of the probe list.
func (l *Locator) Candidates() []string {
	return append([]string(nil), l.candidates...)
}

// Discover returns the first candidate that exists and holds a valid port.
// Missing or unparsable markers are skipped; if none qualifies a warning is
// logged and ok is false.
func (l *Locator) Discover() (Endpoint, bool) {
	for _, path := range l.candidates {
		port, err := ReadPortFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				l.logger.Warn("skipping editor port marker", "path", path, "err", err)
			}
			continue
		}
		l.logger.Debug("discovered editor port", "port", port, "path", path)
		return Endpoint{Port: port, Source: path}, true
	}

	l.logger.Warn("could not discover editor port", "candidates", l.candidates)
	return Endpoint{}, false
}

// ReadPortFile parses a marker file holding a single decimal port number.
func ReadPortFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse port in %s: %w", path, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d in %s is out of range", port, path)
	}
	return port, nil
}

// WritePortFile publishes port at path, creating parent directories.
func WritePortFile(path string, port int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(port)), 0o644)
}
