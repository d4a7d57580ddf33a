package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/quocson95/ideaftp/pkg/transport"
)

// Upload streams the local file to remotePath. The parent directory must
// already exist; see Ensure.
func Upload(ctx context.Context, conn transport.Conn, localPath, remotePath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, &transport.TransferError{Op: string(DirUpload), Profile: profileOf(conn), Path: remotePath, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, &transport.TransferError{Op: string(DirUpload), Profile: profileOf(conn), Path: remotePath, Err: err}
	}
	if info.IsDir() {
		return 0, &transport.TransferError{Op: string(DirUpload), Profile: profileOf(conn), Path: remotePath,
			Err: fmt.Errorf("%s is a directory", localPath)}
	}

	n, err := conn.Put(ctx, remotePath, f)
	if err != nil {
		return n, &transport.TransferError{Op: string(DirUpload), Profile: profileOf(conn), Path: remotePath, Err: err}
	}
	return n, nil
}

// Download reads the whole remote file into memory. Nothing is returned
// unless the transfer completed.
func Download(ctx context.Context, conn transport.Conn, remotePath string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := conn.Get(ctx, remotePath, &buf); err != nil {
		return nil, &transport.TransferError{Op: string(DirDownload), Profile: profileOf(conn), Path: remotePath, Err: err}
	}
	return buf.Bytes(), nil
}
