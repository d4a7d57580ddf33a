package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	RecordConnect("sftp", 20*time.Millisecond, true)
	RecordConnect("ftp", time.Second, false)
	RecordTransfer("upload", 128, 10*time.Millisecond, true)
	RecordTransfer("download", 0, time.Millisecond, false)
	RecordDirsCreated(2)
	RecordListing(true)

	path := filepath.Join(t.TempDir(), "ideaftp.prom")
	require.NoError(t, WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `ideaftp_connects_total{protocol="sftp",status="success"}`)
	assert.Contains(t, out, `ideaftp_connects_total{protocol="ftp",status="error"}`)
	assert.Contains(t, out, `ideaftp_transfer_bytes_total{direction="upload"}`)
	assert.Contains(t, out, `ideaftp_transfers_total{direction="download",status="error"}`)
	assert.Contains(t, out, "ideaftp_remote_dirs_created_total")
}
