// Package staging manages the on-disk zones a file passes through during
// ingestion: incoming, then quarantine or processed.
package staging

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/filex"
	"github.com/google/uuid"
)

type Zone string

const (
	Incoming   Zone = "incoming"
	Quarantine Zone = "quarantine"
	Processed  Zone = "processed"
)

// Zones lists every zone in routing order.
var Zones = []Zone{Incoming, Quarantine, Processed}

// MaxNameLen bounds a sanitized name so that "<sha256 hex>_<name>" and
// "<uuid>_<name>" both fit in a 255-byte file name.
const MaxNameLen = 255 - 64 - 1

// Area is a staging root with one directory per zone. Moves within the root
// are renames and therefore atomic.
type Area struct {
	root string
}

// New creates the zone directories under root.
func New(root string) (*Area, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStagingIO, err)
	}
	for _, z := range Zones {
		if _, err := filex.EnsureDir(filepath.Join(abs, string(z))); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrStagingIO, err)
		}
	}
	return &Area{root: abs}, nil
}

func (a *Area) Root() string { return a.root }

// Path returns the location of name inside zone.
func (a *Area) Path(z Zone, name string) string {
	return filepath.Join(a.root, string(z), name)
}

// Receive writes r into the incoming zone under a unique name derived from
// originalName and returns the staged path.
func (a *Area) Receive(r io.Reader, originalName string) (string, error) {
	path := a.Path(Incoming, uuid.NewString()+"_"+SanitizeName(originalName))
	if _, err := filex.WriteAtomic(path, r); err != nil {
		return "", fmt.Errorf("%w: receive %s: %w", common.ErrStagingIO, originalName, err)
	}
	return path, nil
}

// MoveTo moves the file at path into zone as storedName, replacing any file
// already there, and returns the new path. A started move is never abandoned.
func (a *Area) MoveTo(_ context.Context, path string, z Zone, storedName string) (string, error) {
	dst := a.Path(z, storedName)
	if err := filex.Move(path, dst); err != nil {
		return "", fmt.Errorf("%w: move %s to %s: %w", common.ErrStagingIO, path, z, err)
	}
	return dst, nil
}

func (a *Area) Exists(path string) bool { return filex.Exists(path) }

// SanitizeName reduces a user supplied file name to a safe base name:
// directories are dropped and anything outside letters, digits, '.', '-' and
// '_' becomes '_'.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := strings.TrimLeft(sb.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > MaxNameLen {
		// keep the tail (extension), starting on a rune boundary
		cut := len(out) - MaxNameLen
		for cut < len(out) && !utf8.RuneStart(out[cut]) {
			cut++
		}
		out = out[cut:]
	}
	return out
}
