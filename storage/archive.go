package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrObjectNotFound = errors.New("archived object not found")

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// SnapshotArchive stores tournament exports in object storage.
type SnapshotArchive interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader) (*UploadResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	GetPublicURL(key string) string
}

func SnapshotKey(tournamentID int) string {
	return fmt.Sprintf("tournaments/%d/snapshot.json", tournamentID)
}

func StandingsKey(tournamentID int) string {
	return fmt.Sprintf("tournaments/%d/standings.json", tournamentID)
}
