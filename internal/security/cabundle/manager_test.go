package cabundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a short self-signed cert, valid PEM structure only (parsed, never verified
// against a live connection in these tests).
const testCert = `-----BEGIN CERTIFICATE-----
MIIBgDCCASagAwIBAgIBATAKBggqhkjOPQQDAjASMRAwDgYDVQQKEwdBY21lIENv
MB4XDTI0MDEwMTAwMDAwMFoXDTM0MDEwMTAwMDAwMFowEjEQMA4GA1UEChMHQWNt
ZSBDbzBZMBMGByqGSM49AgEGCCqGSM49AwEHA0IABDpQVKHkQctOeYKybx/9jaR3
DHwcGNQiABOakoCI3SL39Z0JZYme2TD7DYcm625+9PVJ1vqVD/PAmQlKCkvGhNGj
bTBrMA4GA1UdDwEB/wQEAwIChDATBgNVHSUEDDAKBggrBgEFBQcDATAPBgNVHRMB
Af8EBTADAQH/MB0GA1UdDgQWBBSNp8dh6B/4Y/A8Q/Ecl82eHkNRkzAUBgNVHREE
DTALgglsb2NhbGhvc3QwCgYIKoZIzj0EAwIDSAAwRQIgWWqRSJUO30X6229IhYXT
bZSEOCczs182ygXG+KlDjZkCIQDV3ebniw4TZHE4uye6juSVkZPScngkyIWaUtA1
sE9t4A==
-----END CERTIFICATE-----`

func TestManager_EmptyPathLeavesSystemTrustUntouched(t *testing.T) {
	mgr, err := NewManager("")
	require.NoError(t, err)
	assert.Nil(t, mgr.RootCAs())
	cfg := mgr.TLSConfig()
	assert.Nil(t, cfg.RootCAs)
}

func TestManager_LoadsBundleFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte(testCert), 0o600))

	mgr, err := NewManager(path)
	require.NoError(t, err)
	assert.NotNil(t, mgr.RootCAs())
	assert.NotNil(t, mgr.TLSConfig().RootCAs)
}

func TestManager_MissingFileErrors(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}

func TestManager_ForceReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte(testCert), 0o600))

	mgr, err := NewManager(path)
	require.NoError(t, err)
	firstPool := mgr.RootCAs()
	require.NotNil(t, firstPool)

	require.NoError(t, mgr.ForceReload())
	assert.NotNil(t, mgr.RootCAs())
}
