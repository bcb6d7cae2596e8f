package storage

import "context"

// Evidence describes an uploaded proof file.
type Evidence struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EvidenceStore persists complaint evidence and resolves read URLs for it.
// References are content hashes: a CID for IPFS, a sha256 hex digest on disk.
type EvidenceStore interface {
	Put(ctx context.Context, file Evidence) (string, error)
	ReadURL(reference string) (string, error)
}
