// Package record composes fixed-size blocks into variable-length records.
// A record is a chain of blocks linked through the reserved header fields;
// freed blocks are tracked in-band by a dedicated record (id 0) whose
// payload is a LIFO stack of reusable block ids.
package record

import (
	"fmt"

	"github.com/scigolib/pagedb/internal/block"
	"github.com/scigolib/pagedb/internal/utils"
)

const (
	// MaxRecordSize caps the payload of a single record.
	MaxRecordSize = 4 * 1024 * 1024

	// FreeListRecordID is the reserved record holding the free-block stack.
	FreeListRecordID = 0
)

// Storage creates, reads, updates and deletes records over block storage.
type Storage struct {
	blocks *block.Storage
}

// NewStorage creates record storage over blocks. On an empty stream the
// free-block record is bootstrapped as block 0.
func NewStorage(blocks *block.Storage) (*Storage, error) {
	s := &Storage{blocks: blocks}

	head, err := blocks.Find(FreeListRecordID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		head, err = blocks.CreateNew()
		if err != nil {
			return nil, utils.WrapError("free-block record bootstrap failed", err)
		}
	}
	if err := head.Release(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create allocates an empty record and returns its id.
func (s *Storage) Create() (uint32, error) {
	return s.CreateWith(func(uint32) []byte { return nil })
}

// CreateBytes allocates a record holding data and returns its id.
func (s *Storage) CreateBytes(data []byte) (uint32, error) {
	return s.CreateWith(func(uint32) []byte { return data })
}

// CreateWith allocates a record and obtains its payload from gen, which is
// called with the new record's id. This lets callers embed the id in the
// payload before anything is written.
func (s *Storage) CreateWith(gen func(id uint32) []byte) (uint32, error) {
	head, err := s.allocateBlock()
	if err != nil {
		return 0, err
	}

	data := gen(head.ID())
	if len(data) > MaxRecordSize {
		_ = head.Release()
		return 0, fmt.Errorf("record payload %d exceeds maximum %d", len(data), MaxRecordSize)
	}

	if err := s.writeRecord([]*block.Block{head}, data); err != nil {
		return 0, err
	}
	return head.ID(), nil
}

// Find returns the record payload, or nil when the id does not refer to a
// live record head.
func (s *Storage) Find(id uint32) ([]byte, error) {
	head, err := s.blocks.Find(id)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, nil
	}

	deleted, err := head.Header(block.HeaderIsDeleted)
	if err != nil {
		return nil, err
	}
	prev, err := head.Header(block.HeaderPreviousBlockID)
	if err != nil {
		return nil, err
	}
	if deleted == 1 || prev != 0 {
		return nil, head.Release()
	}

	length, err := head.Header(block.HeaderRecordLength)
	if err != nil {
		return nil, err
	}
	if length < 0 || length > MaxRecordSize {
		_ = head.Release()
		return nil, utils.Corrupted("record %d length %d out of range", id, length)
	}

	contentSize := s.blocks.Params().ContentSize()
	data := make([]byte, length)
	off := 0
	cur := head
	for {
		contentLen, err := cur.Header(block.HeaderBlockContentLength)
		if err != nil {
			return nil, err
		}
		if contentLen < 0 || contentLen > int64(contentSize) {
			_ = cur.Release()
			return nil, utils.Corrupted("block %d content length %d exceeds capacity %d",
				cur.ID(), contentLen, contentSize)
		}
		if off+int(contentLen) > len(data) {
			_ = cur.Release()
			return nil, utils.Corrupted("record %d chain longer than record length %d", id, length)
		}
		if err := cur.ReadContent(data, off, 0, int(contentLen)); err != nil {
			return nil, err
		}
		off += int(contentLen)

		next, err := cur.Header(block.HeaderNextBlockID)
		if err != nil {
			return nil, err
		}
		if err := cur.Release(); err != nil {
			return nil, err
		}
		if next == 0 {
			break
		}

		nb, err := s.blocks.Find(uint32(next)) //nolint:gosec // G115: block ids are assigned as uint32
		if err != nil {
			return nil, err
		}
		if nb == nil {
			return nil, utils.Corrupted("record %d chain link %d missing", id, next)
		}
		tombstoned, err := nb.Header(block.HeaderIsDeleted)
		if err != nil {
			return nil, err
		}
		if tombstoned == 1 {
			_ = nb.Release()
			return nil, utils.Corrupted("record %d chain runs into deleted block %d", id, next)
		}
		cur = nb
	}

	if off != int(length) {
		return nil, utils.Corrupted("record %d chain holds %d bytes, header says %d", id, off, length)
	}
	return data, nil
}

// Update rewrites the record payload in place, keeping the head id. Blocks
// are reused in chain order; extra blocks are allocated and surplus blocks
// are pushed onto the free list.
func (s *Storage) Update(id uint32, data []byte) error {
	if id == FreeListRecordID {
		return fmt.Errorf("record id %d is reserved", id)
	}
	if len(data) > MaxRecordSize {
		return fmt.Errorf("record payload %d exceeds maximum %d", len(data), MaxRecordSize)
	}

	chain, err := s.findBlocks(id)
	if err != nil {
		return err
	}
	return s.writeRecord(chain, data)
}

// Delete tombstones every block of the record chain and pushes their ids
// onto the free-block stack.
func (s *Storage) Delete(id uint32) error {
	if id == FreeListRecordID {
		return fmt.Errorf("record id %d is reserved", id)
	}

	chain, err := s.findBlocks(id)
	if err != nil {
		return err
	}
	for _, b := range chain {
		if err := b.SetHeader(block.HeaderIsDeleted, 1); err != nil {
			return err
		}
		if err := s.markAsFree(b.ID()); err != nil {
			return err
		}
		if err := b.Release(); err != nil {
			return err
		}
	}
	return nil
}

// findBlocks loads the full chain of a live record, head first.
func (s *Storage) findBlocks(id uint32) ([]*block.Block, error) {
	head, err := s.blocks.Find(id)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("record %d: %w", id, utils.ErrNotFound)
	}

	deleted, err := head.Header(block.HeaderIsDeleted)
	if err != nil {
		return nil, err
	}
	prev, err := head.Header(block.HeaderPreviousBlockID)
	if err != nil {
		return nil, err
	}
	if deleted == 1 || prev != 0 {
		_ = head.Release()
		return nil, fmt.Errorf("record %d: %w", id, utils.ErrNotFound)
	}

	chain := []*block.Block{head}
	cur := head
	for {
		next, err := cur.Header(block.HeaderNextBlockID)
		if err != nil {
			return nil, err
		}
		if next == 0 {
			return chain, nil
		}
		nb, err := s.blocks.Find(uint32(next)) //nolint:gosec // G115: block ids are assigned as uint32
		if err != nil {
			return nil, err
		}
		if nb == nil {
			return nil, utils.Corrupted("record %d chain link %d missing", id, next)
		}
		chain = append(chain, nb)
		cur = nb
	}
}

// writeRecord lays data across the chain, reusing the given blocks first,
// allocating more as needed and freeing the surplus. All blocks are released
// before returning.
func (s *Storage) writeRecord(chain []*block.Block, data []byte) error {
	contentSize := s.blocks.Params().ContentSize()
	needed := (len(data) + contentSize - 1) / contentSize
	if needed == 0 {
		needed = 1
	}

	used := chain
	for len(used) < needed {
		nb, err := s.allocateBlock()
		if err != nil {
			return err
		}
		used = append(used, nb)
	}
	surplus := used[needed:]
	used = used[:needed]

	off := 0
	for i, b := range used {
		n := min(len(data)-off, contentSize)
		if n > 0 {
			if err := b.WriteContent(data, off, 0, n); err != nil {
				return err
			}
		}
		if err := b.SetHeader(block.HeaderBlockContentLength, int64(n)); err != nil {
			return err
		}
		if i+1 < len(used) {
			if err := b.SetHeader(block.HeaderNextBlockID, int64(used[i+1].ID())); err != nil {
				return err
			}
			if err := used[i+1].SetHeader(block.HeaderPreviousBlockID, int64(b.ID())); err != nil {
				return err
			}
		} else if err := b.SetHeader(block.HeaderNextBlockID, 0); err != nil {
			return err
		}
		off += n
	}
	if err := used[0].SetHeader(block.HeaderRecordLength, int64(len(data))); err != nil {
		return err
	}

	for _, b := range surplus {
		if err := b.SetHeader(block.HeaderIsDeleted, 1); err != nil {
			return err
		}
		if err := s.markAsFree(b.ID()); err != nil {
			return err
		}
		if err := b.Release(); err != nil {
			return err
		}
	}
	for _, b := range used {
		if err := b.Release(); err != nil {
			return err
		}
	}
	return nil
}

// allocateBlock reuses a block from the free stack when one is available,
// else extends the stream. Reused blocks get their reserved headers reset.
func (s *Storage) allocateBlock() (*block.Block, error) {
	id, ok, err := s.tryFindFreeBlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.blocks.CreateNew()
	}

	b, err := s.blocks.Find(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, utils.Corrupted("free stack references missing block %d", id)
	}
	for i := 0; i < 5; i++ {
		if err := b.SetHeader(i, 0); err != nil {
			_ = b.Release()
			return nil, err
		}
	}
	return b, nil
}
