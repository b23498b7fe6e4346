// Package storage defines the object store used for archives, build
// logs and project indexes, keyed like an S3 bucket.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("storage: key not found")

// Store is the narrow contract the orchestrator needs from object
// storage: flat byte blobs addressed by key within one bucket.
type Store interface {
	// Upload writes data under key, replacing any existing object.
	Upload(key string, data []byte) error

	// Download returns the object stored under key, or ErrNotFound.
	Download(key string) ([]byte, error)

	// List returns all keys with the given prefix.
	List(prefix string) ([]string, error)

	// Delete removes the object under key. Deleting a missing key is
	// not an error.
	Delete(key string) error
}

// GetJSON downloads key and unmarshals it into v. A missing key leaves
// v untouched and returns nil, matching the read-or-init pattern used
// for project indexes.
func GetJSON(s Store, key string, v interface{}) error {
	data, err := s.Download(key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}

// PutJSON marshals v and uploads it under key.
func PutJSON(s Store, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return s.Upload(key, data)
}

// DeletePrefix removes every object whose key starts with prefix.
func DeletePrefix(s Store, prefix string) error {
	keys, err := s.List(prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
