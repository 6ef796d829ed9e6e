package storage

import "io"

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Storage abstracts the shared volume holding the catalogue artifacts
// produced by the ingestion pipeline. The backend only ever reads the
// artifacts; Write exists for tooling and tests.
type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Usage() (UsageStats, error)

	Location() string
}
