// Package chunkstore persists enriched book chunks as numbered files.
//
// The set of keys across all chunk files is the collector's only resume
// state: a record is "processed" exactly when some chunk file contains it.
package chunkstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/efebarandurmaz/bookchunk/internal/book"
)

const (
	filePrefix  = "books_chunk_"
	jsonSuffix  = ".json"
	zstdSuffix  = ".json.zst"
	defaultPerm = 0o644
)

// ErrChunkExists is returned by Save when chunk n is already on disk in
// either encoding. Existing chunk files are never replaced.
var ErrChunkExists = errors.New("chunk file already exists")

// Options configures a Store.
type Options struct {
	// Compress writes new chunks zstd-compressed. Either kind is always readable.
	Compress bool
}

// Store is a directory of chunk files.
type Store struct {
	mu       sync.Mutex
	dir      string
	compress bool
}

// Stats summarises the contents of a store.
type Stats struct {
	Files int   `json:"files"`
	Books int   `json:"books"`
	Bytes int64 `json:"bytes"`
}

// Open creates the directory if needed and returns a Store rooted at it.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk directory %s: %w", dir, err)
	}
	return &Store{dir: dir, compress: opts.Compress}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// FileName returns the file name used for chunk n.
func (s *Store) FileName(n int) string {
	suffix := jsonSuffix
	if s.compress {
		suffix = zstdSuffix
	}
	return filePrefix + strconv.Itoa(n) + suffix
}

// NextChunkNumber returns the number of existing chunk files, which is where
// numbering resumes. Files that fail to load still count.
func (s *Store) NextChunkNumber() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read chunk directory: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) {
			n++
		}
	}
	return n, nil
}

// LoadAll merges every readable chunk file in ascending chunk order. On key
// collisions the later file wins. Unreadable files are logged and skipped.
func (s *Store) LoadAll() (book.Chunk, error) {
	all := make(book.Chunk)
	err := s.each(func(name string, c book.Chunk) {
		for id, rec := range c {
			all[id] = rec
		}
	})
	return all, err
}

// ProcessedIDs returns the union of keys across all chunk files.
func (s *Store) ProcessedIDs() (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := s.each(func(name string, c book.Chunk) {
		for id := range c {
			ids[id] = struct{}{}
		}
	})
	return ids, err
}

// Save writes a non-empty chunk as a new file numbered n and returns its path.
// An empty chunk writes nothing and returns "". If chunk n already exists the
// error wraps ErrChunkExists and the existing file is left untouched.
func (s *Store) Save(chunk book.Chunk, n int) (string, error) {
	if len(chunk) == 0 {
		return "", nil
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return "", fmt.Errorf("marshal chunk %d: %w", n, err)
	}
	if s.compress {
		data = encode(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, s.FileName(n))
	for _, suffix := range []string{jsonSuffix, zstdSuffix} {
		existing := filepath.Join(s.dir, filePrefix+strconv.Itoa(n)+suffix)
		if _, err := os.Lstat(existing); err == nil {
			return "", fmt.Errorf("%w: %s", ErrChunkExists, existing)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat chunk %d: %w", n, err)
		}
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-chunk-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write chunk %d: %w", n, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close chunk %d: %w", n, err)
	}
	if err := os.Chmod(tmpName, defaultPerm); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod chunk %d: %w", n, err)
	}
	// Link fails instead of replacing a file created since the check above.
	err = os.Link(tmpName, path)
	os.Remove(tmpName)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrChunkExists, path)
	}
	if err != nil {
		return "", fmt.Errorf("publish chunk %d: %w", n, err)
	}

	slog.Info("chunk saved", "chunk", n, "books", len(chunk), "path", path)
	return path, nil
}

// Stats reports file count, distinct books and total size on disk.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	files, err := s.chunkFiles()
	if err != nil {
		return st, err
	}
	for _, f := range files {
		if info, err := os.Stat(filepath.Join(s.dir, f.name)); err == nil {
			st.Bytes += info.Size()
		}
	}
	st.Files = len(files)
	ids, err := s.ProcessedIDs()
	if err != nil {
		return st, err
	}
	st.Books = len(ids)
	return st, nil
}

// Load reads a single chunk file by name.
func (s *Store) Load(name string) (book.Chunk, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(name, zstdSuffix) {
		if data, err = decode(data); err != nil {
			return nil, fmt.Errorf("decompress %s: %w", name, err)
		}
	}
	var c book.Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return c, nil
}

type chunkFile struct {
	name string
	num  int
}

// chunkFiles lists loadable chunk files sorted by chunk number.
func (s *Store) chunkFiles() ([]chunkFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read chunk directory: %w", err)
	}
	var files []chunkFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		var numPart string
		switch {
		case strings.HasSuffix(name, zstdSuffix):
			numPart = strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), zstdSuffix)
		case strings.HasSuffix(name, jsonSuffix):
			numPart = strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), jsonSuffix)
		default:
			continue
		}
		n, err := strconv.Atoi(numPart)
		if err != nil {
			continue
		}
		files = append(files, chunkFile{name: name, num: n})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].num != files[j].num {
			return files[i].num < files[j].num
		}
		return files[i].name < files[j].name
	})
	return files, nil
}

func (s *Store) each(fn func(name string, c book.Chunk)) error {
	files, err := s.chunkFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		c, err := s.Load(f.name)
		if err != nil {
			slog.Warn("skipping unreadable chunk file", "file", f.name, "error", err)
			continue
		}
		fn(f.name, c)
	}
	return nil
}
