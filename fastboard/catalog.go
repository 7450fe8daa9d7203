package fastboard

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const firmwareStemMarker = "_firmware_v_"

// Catalog maps a "{BoardType}_{Protocol}" key to the firmware versions
// available on disk and their file paths. It is built once, on first
// access, by walking one level of subdirectories under its base
// directory; when the directory is missing or empty a fetch hook is
// invoked first (best-effort, a failed fetch just leaves the catalog
// empty). The built index stays as-is until Refresh drops it.
type Catalog struct {
	dir   string
	fetch func() error

	mu    sync.Mutex
	index map[string]map[string]string
}

// NewCatalog returns a catalog rooted at dir. fetch, when non-nil, is
// called once to populate dir if the first scan finds nothing.
func NewCatalog(dir string, fetch func() error) *Catalog {
	return &Catalog{dir: dir, fetch: fetch}
}

// CatalogKey builds the lookup key for a board type on a bus.
func CatalogKey(boardType string, proto Protocol) string {
	return boardType + "_" + proto.String()
}

// Index returns the full version map, building it on first call.
// The returned map is shared, callers must not mutate it.
func (c *Catalog) Index() map[string]map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		if c.empty() && c.fetch != nil {
			if err := c.fetch(); err != nil {
				log.Printf("firmware fetch failed, catalog stays empty: %s", err)
			}
		}
		c.index = buildIndex(c.dir)
	}
	return c.index
}

// Refresh drops the built index so the next access rescans the
// directory, used after an explicit firmware download.
func (c *Catalog) Refresh() {
	c.mu.Lock()
	c.index = nil
	c.mu.Unlock()
}

// Lookup resolves the file path for a catalog key and canonical version.
func (c *Catalog) Lookup(key, version string) (string, bool) {
	inner, ok := c.Index()[key]
	if !ok {
		return "", false
	}
	path, ok := inner[version]
	return path, ok
}

// Versions lists the catalog's versions for key in ascending numeric
// order, nil when the key is unknown.
func (c *Catalog) Versions(key string) []string {
	inner, ok := c.Index()[key]
	if !ok {
		return nil
	}
	versions := make([]string, 0, len(inner))
	for v := range inner {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versionLess(versions[i], versions[j])
	})
	return versions
}

func (c *Catalog) empty() bool {
	entries, err := os.ReadDir(c.dir)
	return err != nil || len(entries) == 0
}

// buildIndex walks one level of subdirectories under dir and collects
// files matching {BoardType}_{Protocol}_firmware_v_{major}_{minor}.txt.
// Anything else is skipped. The first file seen for a given
// (key, version) wins; directory walk order is sorted, so "first" is
// deterministic.
func buildIndex(dir string) map[string]map[string]string {
	index := make(map[string]map[string]string)
	subdirs, err := os.ReadDir(dir)
	if err != nil {
		return index
	}
	for _, sub := range subdirs {
		if !sub.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, sub.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), ".txt") {
				continue
			}
			stem := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
			key, version, ok := parseFirmwareStem(stem)
			if !ok {
				continue
			}
			inner, ok := index[key]
			if !ok {
				inner = make(map[string]string)
				index[key] = inner
			}
			if _, dup := inner[version]; !dup {
				inner[version] = filepath.Join(dir, sub.Name(), file.Name())
			}
		}
	}
	return index
}

// parseFirmwareStem splits a filename stem of the shape
// {BoardType}_{Protocol}_firmware_v_{major}_{minor} into the catalog
// key and the canonical version string.
func parseFirmwareStem(stem string) (key, version string, ok bool) {
	prefix, verPart, found := strings.Cut(stem, firmwareStemMarker)
	if !found {
		return "", "", false
	}
	sep := strings.LastIndex(prefix, "_")
	if sep < 0 {
		return "", "", false
	}
	parts := strings.SplitN(verPart, "_", 3)
	if len(parts) < 2 {
		return "", "", false
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return "", "", false
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", "", false
	}
	return prefix[:sep] + "_" + prefix[sep+1:], fmt.Sprintf("%d.%02d", major, minor), true
}

// NormalizeVersion converts a user-supplied version like "2.8" into the
// canonical "{major}.{minor:02d}" form used as catalog key ("2.08").
// Inputs that don't parse as {uint}.{uint} come back untouched.
func NormalizeVersion(v string) string {
	majorStr, minorStr, found := strings.Cut(v, ".")
	if !found {
		return v
	}
	major, err := strconv.ParseUint(majorStr, 10, 32)
	if err != nil {
		return v
	}
	minor, err := strconv.ParseUint(minorStr, 10, 32)
	if err != nil {
		return v
	}
	return fmt.Sprintf("%d.%02d", major, minor)
}

// versionLess orders canonical version strings by their numeric
// (major, minor) pair, so "1.09" sorts before "1.10".
func versionLess(a, b string) bool {
	amaj, amin, aok := versionParts(a)
	bmaj, bmin, bok := versionParts(b)
	if !aok || !bok {
		return a < b
	}
	if amaj != bmaj {
		return amaj < bmaj
	}
	return amin < bmin
}

func versionParts(v string) (major, minor uint64, ok bool) {
	majorStr, minorStr, found := strings.Cut(v, ".")
	if !found {
		return 0, 0, false
	}
	major, err := strconv.ParseUint(majorStr, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.ParseUint(minorStr, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
