package sharded

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// chunkWriter accumulates data into chunks, hashes them, and writes unique
// shards. Close writes the manifest.
type chunkWriter struct {
	driver     *Driver
	hashes     []string
	chunkSizes []int64
	size       int64
	buffer     []byte
	pbuf       *[]byte
}

func (d *Driver) newWriter() *chunkWriter {
	w := &chunkWriter{driver: d}
	if pb, ok := d.bufferPool.Get().(*[]byte); ok && pb != nil {
		w.pbuf = pb
		w.buffer = (*pb)[:0]
	} else {
		w.buffer = make([]byte, 0, d.chunkSize)
	}
	return w
}

// resume continues an existing file. A trailing partial chunk is pulled
// back into the buffer so appends fill it up.
func (w *chunkWriter) resume(m *Manifest) error {
	w.hashes = append(w.hashes, m.Chunks...)
	w.chunkSizes = append(w.chunkSizes, m.ChunkSizes...)
	w.size = m.Size

	n := len(w.hashes)
	if n == 0 || w.chunkSizes[n-1] >= w.driver.chunkSize {
		return nil
	}
	last, err := w.driver.readShard(w.hashes[n-1], w.chunkSizes[n-1])
	if err != nil {
		return err
	}
	w.hashes = w.hashes[:n-1]
	w.chunkSizes = w.chunkSizes[:n-1]
	w.buffer = append(w.buffer, last...)
	return nil
}

func (w *chunkWriter) Write(p []byte) (n int, err error) {
	total := len(p)
	for len(p) > 0 {
		space := int(w.driver.chunkSize) - len(w.buffer)
		if space > len(p) {
			w.buffer = append(w.buffer, p...)
			p = nil
		} else {
			w.buffer = append(w.buffer, p[:space]...)
			if err := w.flush(); err != nil {
				return 0, err
			}
			p = p[space:]
		}
	}
	w.size += int64(total)
	return total, nil
}

func (w *chunkWriter) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}

	hash := digest.BLAKE3.Sum(w.buffer)
	p := shardPath(hash)

	if err := w.driver.shardsFs.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return err
	}

	// Content-addressed: skip write if shard already exists (dedup)
	exists, _ := afero.Exists(w.driver.shardsFs, p)
	if !exists {
		if err := afero.WriteFile(w.driver.shardsFs, p, w.buffer, 0644); err != nil {
			return err
		}
	}

	w.hashes = append(w.hashes, hash)
	w.chunkSizes = append(w.chunkSizes, int64(len(w.buffer)))
	w.buffer = w.buffer[:0]
	return nil
}

// Close flushes the last chunk and writes the manifest for name.
func (w *chunkWriter) Close(name string) error {
	defer w.release()
	if err := w.flush(); err != nil {
		return err
	}

	manifest := &Manifest{
		Chunks:     w.hashes,
		ChunkSizes: w.chunkSizes,
		Size:       w.size,
		ModTime:    time.Now(),
	}
	if manifest.Chunks == nil {
		manifest.Chunks, manifest.ChunkSizes = []string{}, []int64{}
	}
	return w.driver.saveManifest(name, manifest)
}

// release returns the buffer to the pool.
func (w *chunkWriter) release() {
	if w.pbuf != nil {
		*w.pbuf = w.buffer[:0]
		w.driver.bufferPool.Put(w.pbuf)
		w.pbuf = nil
		w.buffer = nil
	}
}

// readShard loads one chunk and checks it against its address and size.
func (d *Driver) readShard(hash string, size int64) ([]byte, error) {
	data, err := afero.ReadFile(d.shardsFs, shardPath(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: shard %s is missing", safebox.ErrIntegrity, hash)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != size || digest.BLAKE3.Sum(data) != hash {
		return nil, fmt.Errorf("%w: shard %s is corrupt", safebox.ErrIntegrity, hash)
	}
	return data, nil
}
