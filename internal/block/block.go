package block

import (
	"fmt"

	"github.com/scigolib/pagedb/internal/utils"
)

// Block is a handle to one fixed-size page. The first sector is buffered in
// memory; header writes and content writes that land inside it only touch
// the buffer until Release flushes it back to the stream.
type Block struct {
	id          uint32
	storage     *Storage
	firstSector []byte

	headerCache  [reservedHeaderCount]int64
	headerLoaded [reservedHeaderCount]bool

	sectorDirty bool
	released    bool
}

// ID returns the block id, which is also its zero-based page index.
func (b *Block) ID() uint32 {
	return b.id
}

// Header returns header field i as a signed 64-bit value. The reserved
// fields 0..4 are memoized on first read.
func (b *Block) Header(i int) (int64, error) {
	if b.released {
		return 0, utils.ErrDisposed
	}
	if i < 0 || i >= b.storage.params.HeaderFields() {
		return 0, fmt.Errorf("header index %d out of range [0, %d)", i, b.storage.params.HeaderFields())
	}
	if i < reservedHeaderCount && b.headerLoaded[i] {
		return b.headerCache[i], nil
	}
	v := utils.Int64(b.firstSector[i*8:])
	if i < reservedHeaderCount {
		b.headerCache[i] = v
		b.headerLoaded[i] = true
	}
	return v, nil
}

// SetHeader writes header field i into the buffered first sector. The disk
// is not touched until the block is released.
func (b *Block) SetHeader(i int, v int64) error {
	if b.released {
		return utils.ErrDisposed
	}
	if i < 0 || i >= b.storage.params.HeaderFields() {
		return fmt.Errorf("header index %d out of range [0, %d)", i, b.storage.params.HeaderFields())
	}
	utils.PutInt64(b.firstSector[i*8:], v)
	if i < reservedHeaderCount {
		b.headerCache[i] = v
		b.headerLoaded[i] = true
	}
	b.sectorDirty = true
	return nil
}

// ReadContent copies n content bytes starting at srcOff into dst at dstOff.
// Bytes that lie within the buffered first sector come from memory; the
// remainder is read from the stream.
func (b *Block) ReadContent(dst []byte, dstOff, srcOff, n int) error {
	if b.released {
		return utils.ErrDisposed
	}
	if err := b.checkRange(dstOff, srcOff, n, len(dst)); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	params := b.storage.params
	start := params.HeaderSize + srcOff // block-relative offset
	copied := 0
	if start < params.SectorSize() {
		copied = min(n, params.SectorSize()-start)
		copy(dst[dstOff:dstOff+copied], b.firstSector[start:start+copied])
	}
	if copied < n {
		abs := int64(b.id)*int64(params.BlockSize) + int64(max(params.SectorSize(), start))
		if _, err := b.storage.stream.ReadAt(dst[dstOff+copied:dstOff+n], abs); err != nil {
			return utils.WrapError("block content read failed", err)
		}
	}
	return nil
}

// WriteContent copies n bytes from src at srcOff into the content area at
// dstOff. The first-sector portion updates the buffer; the tail portion is
// written directly to the stream.
func (b *Block) WriteContent(src []byte, srcOff, dstOff, n int) error {
	if b.released {
		return utils.ErrDisposed
	}
	if err := b.checkRange(srcOff, dstOff, n, len(src)); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	params := b.storage.params
	start := params.HeaderSize + dstOff // block-relative offset
	written := 0
	if start < params.SectorSize() {
		written = min(n, params.SectorSize()-start)
		copy(b.firstSector[start:start+written], src[srcOff:srcOff+written])
		b.sectorDirty = true
	}
	for written < n {
		chunk := min(n-written, 4096)
		abs := int64(b.id)*int64(params.BlockSize) + int64(start) + int64(written)
		if _, err := b.storage.stream.WriteAt(src[srcOff+written:srcOff+written+chunk], abs); err != nil {
			return utils.WrapError("block content write failed", err)
		}
		written += chunk
	}
	return nil
}

// checkRange validates a content transfer. bufOff/bufLen describe the caller
// buffer side, contentOff the content-area side.
func (b *Block) checkRange(bufOff, contentOff, n, bufLen int) error {
	if n < 0 || bufOff < 0 || contentOff < 0 {
		return fmt.Errorf("negative offset or length (off=%d, contentOff=%d, n=%d)", bufOff, contentOff, n)
	}
	if contentOff+n > b.storage.params.ContentSize() {
		return fmt.Errorf("content range [%d, %d) exceeds content size %d",
			contentOff, contentOff+n, b.storage.params.ContentSize())
	}
	if bufOff+n > bufLen {
		return fmt.Errorf("buffer range [%d, %d) exceeds buffer length %d", bufOff, bufOff+n, bufLen)
	}
	return nil
}

// Release writes back the first sector if it was modified and evicts the
// block from the storage cache. Releasing twice is a no-op; any other use
// after release fails with ErrDisposed.
func (b *Block) Release() error {
	if b.released {
		return nil
	}
	if b.sectorDirty {
		abs := int64(b.id) * int64(b.storage.params.BlockSize)
		if _, err := b.storage.stream.WriteAt(b.firstSector, abs); err != nil {
			return utils.WrapError("first sector flush failed", err)
		}
		b.sectorDirty = false
	}
	b.storage.evict(b.id)
	b.released = true
	return nil
}
