package vm

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// ChunkCache: content-addressed on-disk cache of compiled chunks
// ---------------------------------------------------------------------------

var cacheLog = commonlog.GetLogger("fusabi.cache")

// ChunkCache stores serialized .fzb images keyed by the SHA-256 of their
// source text. The module loader consults it before recompiling a file.
type ChunkCache struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenChunkCache opens (creating if needed) the cache database at path.
func OpenChunkCache(path string) (*ChunkCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening chunk cache: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring chunk cache: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		source_hash TEXT PRIMARY KEY,
		path        TEXT NOT NULL,
		image       BLOB NOT NULL,
		created_at  INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chunk cache schema: %w", err)
	}
	return &ChunkCache{db: db}, nil
}

// Get returns the cached chunk for a source hash, or nil on a miss. A
// corrupt entry is treated as a miss and evicted.
func (c *ChunkCache) Get(sourceHash [32]byte) (*Chunk, *ImageMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := hex.EncodeToString(sourceHash[:])
	var image []byte
	err := c.db.QueryRow("SELECT image FROM chunks WHERE source_hash = ?", key).Scan(&image)
	if err != nil {
		return nil, nil
	}
	chunk, meta, rerr := NewImageReader(image).ReadImage()
	if rerr != nil {
		cacheLog.Warningf("evicting corrupt cache entry %s: %v", key, rerr)
		c.db.Exec("DELETE FROM chunks WHERE source_hash = ?", key)
		return nil, nil
	}
	return chunk, meta
}

// Put stores a compiled chunk image under its source hash.
func (c *ChunkCache) Put(path string, sourceHash [32]byte, chunk *Chunk, meta ImageMetadata) error {
	image, err := NewImageWriter().WriteImage(chunk, meta)
	if err != nil {
		return fmt.Errorf("serializing chunk for cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := hex.EncodeToString(sourceHash[:])
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO chunks (source_hash, path, image, created_at) VALUES (?, ?, ?, ?)",
		key, path, image, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing chunk in cache: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (c *ChunkCache) Close() error {
	return c.db.Close()
}
