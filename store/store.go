// Package store persists tenant configuration as a single durable document.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	"listing-notifier/pkg/watch"
)

// DocumentName is the object/file holding the full tenant mapping.
const DocumentName = "tenants.json"

// AlertFunc raises an operator-visible alert, used when the persisted
// document is found corrupt or empty. Implementations must not block for
// long.
type AlertFunc func(ctx context.Context, text string)

var errNotExist = errors.New("store: document doesn't exist")

// Store owns on-disk durability of the tenant mapping. Every read and write
// goes through one mutex, so a caller can never observe or produce a torn
// document, and Update's read-modify-write cannot lose concurrent updates.
type Store struct {
	mu        sync.Mutex
	client    *gcs.Client
	bucket    string
	localPath string
	alert     AlertFunc
	logger    *slog.Logger
}

// New creates a store backed by a Cloud Storage bucket, or by the localPath
// directory when it is non-empty (local development mode). alert may be nil.
func New(client *gcs.Client, bucket, localPath string, alert AlertFunc, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		bucket:    bucket,
		localPath: localPath,
		alert:     alert,
		logger:    logger,
	}
}

// Load reads the persisted document. An absent document yields an empty
// mapping. A present but empty or corrupt document also yields an empty
// mapping and raises an operator alert: tenant configuration has been lost
// and needs manual re-entry, but the service keeps running for tenants
// registered afterward. Only backend IO failures surface as errors.
func (s *Store) Load(ctx context.Context) (map[string]*watch.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Save atomically replaces the persisted document with the full mapping.
func (s *Store) Save(ctx context.Context, tenants map[string]*watch.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, tenants)
}

// Update applies mutate to one tenant under the store lock and persists the
// result. An absent tenant is created with defaults first, which is how a
// previously unseen id gets its initial record.
func (s *Store) Update(ctx context.Context, id string, mutate func(*watch.Tenant)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenants, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}

	t, ok := tenants[id]
	if !ok {
		t = &watch.Tenant{Interval: watch.DefaultInterval}
		tenants[id] = t
	}
	mutate(t)

	return s.saveLocked(ctx, tenants)
}

func (s *Store) loadLocked(ctx context.Context) (map[string]*watch.Tenant, error) {
	data, err := s.read(ctx)
	if err != nil {
		if errors.Is(err, errNotExist) {
			s.logger.Warn("Tenant document not found, starting empty", "document", DocumentName)
			return map[string]*watch.Tenant{}, nil
		}
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		s.raiseAlert(ctx, "tenant document is empty; configuration must be re-entered")
		return map[string]*watch.Tenant{}, nil
	}

	tenants := map[string]*watch.Tenant{}
	if err := json.Unmarshal(data, &tenants); err != nil {
		s.raiseAlert(ctx, fmt.Sprintf("tenant document is corrupt (%v); configuration must be re-entered", err))
		return map[string]*watch.Tenant{}, nil
	}

	return tenants, nil
}

func (s *Store) saveLocked(ctx context.Context, tenants map[string]*watch.Tenant) error {
	data, err := json.MarshalIndent(tenants, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tenants: %w", err)
	}

	if err := s.write(ctx, data); err != nil {
		return err
	}

	s.logger.Debug("Tenant document saved", "document", DocumentName, "tenant_count", len(tenants))
	return nil
}

// read fetches the raw document bytes from the active backend.
func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, DocumentName))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errNotExist
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(DocumentName).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, gcs.ErrObjectNotExist) {
					return retry.Unrecoverable(errNotExist)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, errNotExist) {
			return nil, errNotExist
		}
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

// write replaces the document on the active backend. The local backend
// writes to a temp file and renames it into place so a concurrent load never
// sees a partial document; Cloud Storage object replacement is atomic on
// Close.
func (s *Store) write(ctx context.Context, data []byte) error {
	if s.localPath != "" {
		tmp, err := os.CreateTemp(s.localPath, ".tenants-*.json")
		if err != nil {
			return fmt.Errorf("create temp document: %w", err)
		}
		tmpName := tmp.Name()

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("write temp document: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("close temp document: %w", err)
		}
		if err := os.Rename(tmpName, filepath.Join(s.localPath, DocumentName)); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("replace document: %w", err)
		}
		return nil
	}

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(DocumentName).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

func (s *Store) raiseAlert(ctx context.Context, text string) {
	s.logger.Error("Tenant document problem", "document", DocumentName, "detail", text)
	if s.alert != nil {
		s.alert(ctx, "⚠ "+text)
	}
}
