package fetch

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serveArchive(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFirmwareExtractsTxtEntries(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"fast-firmware-main/FP-EXP-0091/FP-EXP-0091_EXP_firmware_v_0_48.txt": "REC1\rREC2\r",
		"fast-firmware-main/FP-CPU-2000/FP-CPU-2000_NET_firmware_v_2_28.txt": "NREC\r",
		"fast-firmware-main/README.md":                                       "docs",
		"fast-firmware-main/tools/flash.bin":                                 "\x00\x01",
	})
	srv := serveArchive(t, archive)
	dir := filepath.Join(t.TempDir(), "firmware")

	n, err := Firmware(dir, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// layout below the stripped top-level dir is preserved, byte-for-byte
	b, err := os.ReadFile(filepath.Join(dir, "FP-EXP-0091", "FP-EXP-0091_EXP_firmware_v_0_48.txt"))
	require.NoError(t, err)
	assert.Equal(t, "REC1\rREC2\r", string(b))

	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestFirmwareRejectsEscapingEntries(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"fast-firmware-main/../evil_EXP_firmware_v_1_0.txt": "nope",
		"toplevel_only.txt": "nope",
	})
	srv := serveArchive(t, archive)
	dir := t.TempDir()

	n, err := Firmware(dir, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFirmwareHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := Firmware(t.TempDir(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFirmwareBadArchive(t *testing.T) {
	srv := serveArchive(t, []byte("this is not a zip"))
	_, err := Firmware(t.TempDir(), srv.URL)
	require.Error(t, err)
}
