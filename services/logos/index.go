package logos

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
)

// IndexVersion is the current schema of tmdb/logo-cache.json.
//
//	v1: bare map of key -> entry, filenames may be absolute paths
//	v2: {"version":2,"entries":{...}} with bare filenames only
const IndexVersion = 2

// Entry is one cached resolution. A nil LogoFilename is a negative result:
// the title was looked up and has no logo.
type Entry struct {
	LogoFilename *string   `json:"logoFilename"`
	FetchedAt    time.Time `json:"fetchedAt"`
	TMDBID       int64     `json:"tmdbId,omitempty"`
}

// Negative reports whether the entry records the absence of a logo.
func (e Entry) Negative() bool {
	return e.LogoFilename == nil
}

type indexDoc struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// migrations[n] upgrades an index from version n to n+1.
var migrations = map[int]func(map[string]Entry) int{
	1: migrateBareFilenames,
}

// decodeIndex parses any known index version and runs the migrations needed
// to reach IndexVersion. It reports whether anything was migrated.
func decodeIndex(data []byte) (map[string]Entry, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false, fmt.Errorf("decode logo index: %w", err)
	}

	version := 1
	entries := map[string]Entry{}

	if raw, ok := fields["version"]; ok {
		if err := json.Unmarshal(raw, &version); err != nil {
			return nil, false, fmt.Errorf("decode logo index version: %w", err)
		}
		var doc indexDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, false, fmt.Errorf("decode logo index: %w", err)
		}
		if doc.Entries != nil {
			entries = doc.Entries
		}
	} else if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, fmt.Errorf("decode legacy logo index: %w", err)
	}

	if version > IndexVersion {
		return nil, false, fmt.Errorf("logo index version %d is newer than supported %d", version, IndexVersion)
	}

	migrated := version < IndexVersion
	for v := version; v < IndexVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return nil, false, fmt.Errorf("no logo index migration from version %d", v)
		}
		step(entries)
	}
	return entries, migrated, nil
}

// migrateBareFilenames rewrites stored full paths to bare filenames.
func migrateBareFilenames(entries map[string]Entry) int {
	var changed int
	for key, e := range entries {
		if e.LogoFilename == nil {
			continue
		}
		name := bareFilename(*e.LogoFilename)
		if name == *e.LogoFilename {
			continue
		}
		if name == "" {
			delete(entries, key)
		} else {
			e.LogoFilename = &name
			entries[key] = e
		}
		changed++
	}
	return changed
}

func bareFilename(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// validFilename rejects anything that is not a bare file name.
func validFilename(name string) error {
	if name == "" || name != bareFilename(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid logo filename %q: %w", name, fs.ErrInvalid)
	}
	return nil
}

var errUnsupportedFormat = errors.New("unsupported logo format")
