// Package state holds the bot's mutable session data: the persistent part that
// survives restarts through a datastore snapshot, and the volatile part that
// lives only as long as the process.
package state

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/keshon/digmbot/datastore"
)

// Logical keys of the persistent snapshot.
const (
	KeyVcNotifyFollowers = "vc_notify.followers"
	KeyRivalsRatings     = "rivals.ratings"
	KeyRivalsOwners      = "rivals.owners"
	KeyModelOverride     = "llm.model_override"
)

// Persistent is the state that survives restarts. Every committed mutation is
// flushed to the snapshot before Mutate returns.
type Persistent struct {
	mu sync.RWMutex
	ds *datastore.DataStore
}

// OpenPersistent loads the snapshot at path. A snapshot that fails to decode
// yields an error wrapping datastore.ErrCorrupt.
func OpenPersistent(path string) (*Persistent, error) {
	ds, err := datastore.New(path)
	if err != nil {
		return nil, err
	}
	return &Persistent{ds: ds}, nil
}

// Get decodes the value stored under key into T. ok is false when the key is absent.
func Get[T any](p *Persistent, key string) (value T, ok bool, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return decode[T](p.ds, key)
}

// Mutate runs fn on the current value of key (the zero value when absent),
// stores the result and flushes the snapshot. If fn returns an error nothing
// is stored. Concurrent readers see either the old or the new value, never a
// half-applied one.
func Mutate[T any](p *Persistent, key string, fn func(v *T) error) error {
	return p.Update(func(tx *Tx) error {
		v, _, err := Load[T](tx, key)
		if err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
		Store(tx, key, v)
		return nil
	})
}

// Tx stages writes to several keys so they are committed together.
type Tx struct {
	ds     *datastore.DataStore
	staged map[string]any
}

// Load reads key as seen by the transaction, including its own staged writes.
func Load[T any](tx *Tx, key string) (T, bool, error) {
	if v, ok := tx.staged[key]; ok {
		return convert[T](key, v)
	}
	return decode[T](tx.ds, key)
}

// Store stages v under key.
func Store(tx *Tx, key string, v any) {
	tx.staged[key] = v
}

// Update runs fn under the exclusive boundary. When fn succeeds all staged
// writes are applied and flushed at once; when it fails none are.
func (p *Persistent) Update(fn func(tx *Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := &Tx{ds: p.ds, staged: make(map[string]any)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.staged) == 0 {
		return nil
	}

	prev := p.snapshotKeys(tx.staged)
	for k, v := range tx.staged {
		p.ds.Add(k, v)
	}
	if err := p.ds.SaveToFile(); err != nil {
		p.restore(prev)
		return fmt.Errorf("flush state: %w", err)
	}
	return nil
}

// Delete removes key and flushes the snapshot. If the flush fails the key
// is put back.
func (p *Persistent) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.snapshotKeys(map[string]any{key: nil})
	p.ds.Delete(key)
	if err := p.ds.SaveToFile(); err != nil {
		p.restore(prev)
		return fmt.Errorf("flush state %s: %w", key, err)
	}
	return nil
}

type previous struct {
	value  any
	exists bool
}

// snapshotKeys records what the datastore holds for each key about to be
// overwritten. Callers hold p.mu.
func (p *Persistent) snapshotKeys(keys map[string]any) map[string]previous {
	out := make(map[string]previous, len(keys))
	for k := range keys {
		v, ok := p.ds.Get(k)
		out[k] = previous{value: v, exists: ok}
	}
	return out
}

func (p *Persistent) restore(prev map[string]previous) {
	for k, old := range prev {
		if old.exists {
			p.ds.Add(k, old.value)
		} else {
			p.ds.Delete(k)
		}
	}
}

// Keys lists the logical keys present in the snapshot.
func (p *Persistent) Keys() []string {
	return p.ds.Keys()
}

// Dump returns the snapshot document as indented JSON.
func (p *Persistent) Dump() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ds.Snapshot()
}

func (p *Persistent) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ds.SaveToFile()
}

// Close writes the final snapshot.
func (p *Persistent) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ds.Close()
}

// decode converts whatever the datastore holds (a typed value put there by
// Mutate, or generic JSON loaded from disk) into T. Going through JSON also
// means callers never share maps or slices with the stored value.
func decode[T any](ds *datastore.DataStore, key string) (T, bool, error) {
	raw, ok := ds.Get(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	return convert[T](key, raw)
}

func convert[T any](key string, raw any) (T, bool, error) {
	var out T
	data, err := json.Marshal(raw)
	if err != nil {
		return out, true, fmt.Errorf("error marshalling %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, true, fmt.Errorf("error unmarshalling %s into %T: %w", key, out, err)
	}
	return out, true, nil
}
