// Package block implements fixed-size page storage over a byte-addressed
// stream. Each block carries a small header of 64-bit fields followed by a
// content area; the first sector of every loaded block is buffered in memory
// and written back when the block is released.
package block

import (
	"io"
	"os"

	"github.com/scigolib/pagedb/internal/utils"
)

// Stream is the byte-addressed backing store for a block file.
type Stream interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Sync() error
}

// FileStream adapts an *os.File to the Stream interface.
type FileStream struct {
	f *os.File
}

// NewFileStream wraps an open file.
func NewFileStream(f *os.File) *FileStream {
	return &FileStream{f: f}
}

// ReadAt implements io.ReaderAt.
func (s *FileStream) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (s *FileStream) WriteAt(p []byte, off int64) (int, error) {
	return s.f.WriteAt(p, off)
}

// Size returns the current file length.
func (s *FileStream) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Sync flushes the file to stable storage.
func (s *FileStream) Sync() error {
	return s.f.Sync()
}

// Close closes the underlying file.
func (s *FileStream) Close() error {
	return s.f.Close()
}

// Storage allocates, locates and caches blocks of one file. The cache is
// instance-private and keyed by block id; a block stays cached until it is
// released.
type Storage struct {
	stream Stream
	params Params
	cache  map[uint32]*Block
}

// NewStorage creates block storage over stream with the given geometry.
func NewStorage(stream Stream, params Params) (*Storage, error) {
	if err := params.Validate(); err != nil {
		return nil, utils.WrapError("invalid block parameters", err)
	}
	size, err := stream.Size()
	if err != nil {
		return nil, utils.WrapError("stream size failed", err)
	}
	if size%int64(params.BlockSize) != 0 {
		return nil, utils.Corrupted("stream length %d is not a multiple of block size %d", size, params.BlockSize)
	}
	return &Storage{
		stream: stream,
		params: params,
		cache:  make(map[uint32]*Block),
	}, nil
}

// Params returns the page geometry of this storage.
func (s *Storage) Params() Params {
	return s.params
}

// CreateNew extends the stream by one zero-filled block and returns it.
// The new block's id is the index of the new last page.
func (s *Storage) CreateNew() (*Block, error) {
	size, err := s.stream.Size()
	if err != nil {
		return nil, utils.WrapError("stream size failed", err)
	}
	if size%int64(s.params.BlockSize) != 0 {
		return nil, utils.Corrupted("stream length %d is not a multiple of block size %d", size, s.params.BlockSize)
	}

	zero := make([]byte, s.params.BlockSize)
	if _, err := s.stream.WriteAt(zero, size); err != nil {
		return nil, utils.WrapError("block extend failed", err)
	}

	id := uint32(size / int64(s.params.BlockSize)) //nolint:gosec // G115: page counts fit in uint32
	b := &Block{
		id:          id,
		storage:     s,
		firstSector: make([]byte, s.params.SectorSize()),
	}
	s.cache[id] = b
	return b, nil
}

// Find returns the block with the given id, or nil when the id lies beyond
// the end of the stream. While a block is alive the same instance is
// returned for repeated lookups.
func (s *Storage) Find(id uint32) (*Block, error) {
	if b, ok := s.cache[id]; ok {
		return b, nil
	}

	size, err := s.stream.Size()
	if err != nil {
		return nil, utils.WrapError("stream size failed", err)
	}
	end := (int64(id) + 1) * int64(s.params.BlockSize)
	if end > size {
		return nil, nil
	}

	sector := make([]byte, s.params.SectorSize())
	if _, err := s.stream.ReadAt(sector, int64(id)*int64(s.params.BlockSize)); err != nil {
		return nil, utils.WrapError("first sector read failed", err)
	}

	b := &Block{
		id:          id,
		storage:     s,
		firstSector: sector,
	}
	s.cache[id] = b
	return b, nil
}

// evict drops a block from the cache. Called from Block.Release.
func (s *Storage) evict(id uint32) {
	delete(s.cache, id)
}
