// Package remote implements listing, directory creation, and transfers on
// top of a transport.Conn.
package remote

// Kind is the type of a remote entry
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Entry is a normalized remote directory entry
type Entry struct {
	Name string
	Path string // full remote path
	Kind Kind
}

// IsDir reports whether the entry is a directory
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Direction of a transfer
type Direction string

const (
	DirUpload   Direction = "upload"
	DirDownload Direction = "download"
)

// Job describes a single file transfer
type Job struct {
	Profile   string
	Source    string
	Dest      string
	Direction Direction
	Size      int64
}
