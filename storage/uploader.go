package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader stores published artifacts (standings snapshots) under a key.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// StandingsKey is the object key of a tournament's published standings.
func StandingsKey(tournamentID int) string {
	return fmt.Sprintf("tournaments/%d/standings.json", tournamentID)
}

func publicURL(baseURL, key string) string {
	if baseURL == "" || key == "" {
		return ""
	}
	u, err := url.JoinPath(baseURL, key)
	if err != nil {
		return ""
	}
	return u
}

// StoredObject is an object held by MemoryUploader.
type StoredObject struct {
	ContentType string
	Body        []byte
}

// MemoryUploader keeps uploads in a map. Used by tests and the simulator.
type MemoryUploader struct {
	mu            sync.Mutex
	objects       map[string]StoredObject
	publicBaseURL string
}

func NewMemoryUploader(publicBaseURL string) *MemoryUploader {
	return &MemoryUploader{
		objects:       make(map[string]StoredObject),
		publicBaseURL: publicBaseURL,
	}
}

func (u *MemoryUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to read object body (key: %s): %w", key, err)
	}

	u.mu.Lock()
	u.objects[key] = StoredObject{ContentType: contentType, Body: buf.Bytes()}
	u.mu.Unlock()

	return &UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *MemoryUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *MemoryUploader) GetPublicURL(key string) string {
	return publicURL(u.publicBaseURL, key)
}

// Object returns a stored object by key.
func (u *MemoryUploader) Object(key string) (StoredObject, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	obj, ok := u.objects[key]
	return obj, ok
}
