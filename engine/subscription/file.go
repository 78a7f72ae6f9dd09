package subscription

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

// FileStore keeps subscriptions in a YAML file. The whole file is rewritten
// on every change.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// OpenFile returns a store over path. A missing file is an empty store.
func OpenFile(path string) (*FileStore, error) {
	f := &FileStore{path: path, now: time.Now}
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

type fileDoc struct {
	Subscriptions []domain.Subscription `yaml:"subscriptions"`
}

func (f *FileStore) load() ([]domain.Subscription, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscription: read %s: %w", f.path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("subscription: parse %s: %w", f.path, err)
	}
	return doc.Subscriptions, nil
}

func (f *FileStore) save(subs []domain.Subscription) error {
	raw, err := yaml.Marshal(fileDoc{Subscriptions: subs})
	if err != nil {
		return fmt.Errorf("subscription: encode: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("subscription: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) ListActive(_ context.Context, limit int) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, err := f.load()
	if err != nil {
		return nil, err
	}
	var out []domain.Subscription
	for _, s := range subs {
		if !s.Active {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *FileStore) List(_ context.Context) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) Add(_ context.Context, s domain.Subscription) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, err := f.load()
	if err != nil {
		return domain.Subscription{}, err
	}
	s = withDefaults(s)
	s.CreatedAt = f.now().UTC().Truncate(time.Second)
	s.ID = 1
	for _, existing := range subs {
		if existing.ID >= s.ID {
			s.ID = existing.ID + 1
		}
	}
	if err := f.save(append(subs, s)); err != nil {
		return domain.Subscription{}, err
	}
	return s, nil
}

func (f *FileStore) Deactivate(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, err := f.load()
	if err != nil {
		return err
	}
	for i := range subs {
		if subs[i].ID == id {
			subs[i].Active = false
			return f.save(subs)
		}
	}
	return fmt.Errorf("subscription %d: %w", id, domain.ErrNotFound)
}

func (f *FileStore) Close() error { return nil }
