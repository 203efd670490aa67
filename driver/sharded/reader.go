package sharded

import (
	"io"
)

// chunkReader stitches the shards of a manifest together, checking each
// shard against its digest as it is loaded.
type chunkReader struct {
	driver   *Driver
	manifest *Manifest
	next     int
	buf      []byte
}

func newChunkReader(d *Driver, m *Manifest) *chunkReader {
	return &chunkReader{driver: d, manifest: m}
}

func (r *chunkReader) Read(p []byte) (n int, err error) {
	for len(r.buf) == 0 {
		if r.next >= len(r.manifest.Chunks) {
			return 0, io.EOF
		}
		r.buf, err = r.driver.readShard(r.manifest.Chunks[r.next], r.manifest.ChunkSizes[r.next])
		if err != nil {
			return 0, err
		}
		r.next++
	}
	n = copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
