// Package fetch downloads the published FAST firmware archive and
// unpacks it into the on-disk catalog layout: one subdirectory per
// board family, CR-delimited .txt images inside.
package fetch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultArchiveURL is the published firmware bundle, a GitHub branch
// zip with a single top-level directory.
const DefaultArchiveURL = "https://github.com/fastpinball/fast-firmware/archive/refs/heads/main.zip"

// DefaultDir resolves the firmware base directory under the user's
// home, ~/.fast/firmware.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".fast", "firmware"), nil
}

// Firmware downloads the archive at url and extracts its .txt entries
// under dir, stripping the archive's top-level directory but keeping
// the rest of the layout. It returns how many files were extracted.
func Firmware(dir, url string) (int, error) {
	log.Printf("downloading firmware archive from %s ...", url)
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading archive body: %w", err)
	}
	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return 0, fmt.Errorf("invalid zip archive: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}

	extracted := 0
	for _, zf := range archive.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rel, ok := stripTopDir(zf.Name)
		if !ok || !strings.EqualFold(filepath.Ext(rel), ".txt") {
			continue
		}
		if err := extractFile(zf, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return extracted, err
		}
		extracted++
	}
	if extracted == 0 {
		log.Println("no .txt firmware files were found in the archive")
	} else {
		log.Printf("downloaded %d firmware files into %s", extracted, dir)
	}
	return extracted, nil
}

func extractFile(zf *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	in, err := zf.Open()
	if err != nil {
		return fmt.Errorf("zip read %q: %w", zf.Name, err)
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("writing %q: %w", dest, err)
	}
	return nil
}

// stripTopDir drops the archive's wrapping directory (GitHub zips wrap
// everything in "{repo}-{branch}/"). Entries without one, or escaping
// the tree, are rejected.
func stripTopDir(name string) (string, bool) {
	_, rel, found := strings.Cut(name, "/")
	if !found || rel == "" {
		return "", false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", false
		}
	}
	return rel, true
}
