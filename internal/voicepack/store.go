// Package voicepack persists downloaded voice-model assets between runs.
// The only contract the playback core relies on is "cached vs not cached"
// per voice identifier; compression and layout are storage details.
package voicepack

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/zstd"
	gap "github.com/muesli/go-app-paths"
)

// ErrNotStored is returned when a voice pack is absent from the store.
var ErrNotStored = errors.New("voice pack not stored")

const indexFile = "index.gob"

// entry describes one stored pack in the on-disk index.
type entry struct {
	VoiceID      string
	FileName     string
	Size         int64 // compressed size on disk
	OriginalSize int64
	StoredAt     time.Time
}

// Store is a disk-backed voice-pack store with zstd-compressed blobs and a
// gob index for fast stored-set queries.
type Store struct {
	dir string

	mu    sync.RWMutex
	index map[string]*entry

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	watcher *fsnotify.Watcher
	logger  *log.Logger
}

// DefaultDir returns the per-user cache directory for voice packs.
func DefaultDir() (string, error) {
	scope := gap.NewScope(gap.User, "voicebox")
	dir, err := scope.CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to resolve cache directory: %w", err)
	}
	return filepath.Join(dir, "voices"), nil
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create voice store directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create zstd decoder: %w", err)
	}

	s := &Store{
		dir:     dir,
		index:   make(map[string]*entry),
		encoder: encoder,
		decoder: decoder,
		logger:  logger,
	}
	if err := s.loadIndex(); err != nil {
		// Corrupt or missing index: start empty, packs become re-downloadable.
		s.logger.Debug("voice store index unreadable, starting empty", "err", err)
		s.index = make(map[string]*entry)
	}
	return s, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Stored returns the sorted identifiers of every cached voice pack.
func (s *Store) Stored() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether a voice pack is cached.
func (s *Store) Has(voiceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[voiceID]
	return ok
}

// Put stores a voice pack's assets, replacing any previous copy.
func (s *Store) Put(voiceID string, data []byte) error {
	compressed := s.encoder.EncodeAll(data, nil)
	name := fileName(voiceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return fmt.Errorf("unable to write voice pack: %w", err)
	}
	s.index[voiceID] = &entry{
		VoiceID:      voiceID,
		FileName:     name,
		Size:         int64(len(compressed)),
		OriginalSize: int64(len(data)),
		StoredAt:     time.Now(),
	}
	if err := s.saveIndexLocked(); err != nil {
		return err
	}
	s.logger.Debug("stored voice pack",
		"voice", voiceID,
		"size", humanize.Bytes(uint64(len(data))),
		"on_disk", humanize.Bytes(uint64(len(compressed))))
	return nil
}

// Get returns a voice pack's decompressed assets.
func (s *Store) Get(voiceID string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.index[voiceID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotStored
	}

	compressed, err := os.ReadFile(filepath.Join(s.dir, e.FileName))
	if err != nil {
		// Blob gone from under us: drop the index entry.
		s.mu.Lock()
		delete(s.index, voiceID)
		_ = s.saveIndexLocked()
		s.mu.Unlock()
		return nil, ErrNotStored
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("voice pack corrupted: %w", err)
	}
	return data, nil
}

// ModelPath materializes the decompressed model for voiceID on disk and
// returns its path; the materialized copy is reused until flushed. Synthesis
// backends need a real file, not a blob.
func (s *Store) ModelPath(voiceID string) (string, error) {
	modelDir := filepath.Join(s.dir, "models")
	path := filepath.Join(modelDir, fileName(voiceID)+".onnx")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := s.Get(voiceID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create model directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("unable to materialize model: %w", err)
	}
	return path, nil
}

// Remove deletes one cached voice pack.
func (s *Store) Remove(voiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[voiceID]
	if !ok {
		return nil
	}
	delete(s.index, voiceID)
	_ = os.Remove(filepath.Join(s.dir, e.FileName))
	_ = os.Remove(filepath.Join(s.dir, "models", e.FileName+".onnx"))
	return s.saveIndexLocked()
}

// Flush removes every cached voice pack and materialized model.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.index {
		_ = os.Remove(filepath.Join(s.dir, e.FileName))
	}
	_ = os.RemoveAll(filepath.Join(s.dir, "models"))
	s.index = make(map[string]*entry)
	return s.saveIndexLocked()
}

// Watch invokes fn whenever the store directory changes on disk, so derived
// cache status can be recomputed when packs appear or vanish outside this
// process. Watching stops when the watcher is closed via Close.
func (s *Store) Watch(fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch voice store: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("unable to watch voice store: %w", err)
	}
	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					s.reloadIndex()
					fn()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Debug("voice store watch error", "err", err)
			}
		}
	}()
	return nil
}

// Close stops any watcher. The store itself needs no teardown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}

func (s *Store) reloadIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make(map[string]*entry)
	if err := s.readIndex(&fresh); err == nil {
		s.index = fresh
		return
	}
	// Index gone: drop entries whose blobs vanished.
	for id, e := range s.index {
		if _, err := os.Stat(filepath.Join(s.dir, e.FileName)); err != nil {
			delete(s.index, id)
		}
	}
}

func (s *Store) loadIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex(&s.index)
}

func (s *Store) readIndex(into *map[string]*entry) error {
	f, err := os.Open(filepath.Join(s.dir, indexFile))
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck
	return gob.NewDecoder(f).Decode(into)
}

func (s *Store) saveIndexLocked() error {
	f, err := os.Create(filepath.Join(s.dir, indexFile))
	if err != nil {
		return fmt.Errorf("unable to write voice store index: %w", err)
	}
	defer f.Close() //nolint:errcheck
	if err := gob.NewEncoder(f).Encode(s.index); err != nil {
		return fmt.Errorf("unable to encode voice store index: %w", err)
	}
	return nil
}

func fileName(voiceID string) string {
	sum := sha256.Sum256([]byte(voiceID))
	return hex.EncodeToString(sum[:8]) + ".zst"
}
