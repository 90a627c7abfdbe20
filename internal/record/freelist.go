package record

import (
	"github.com/scigolib/pagedb/internal/block"
	"github.com/scigolib/pagedb/internal/utils"
)

// markAsFree pushes a block id onto the free-block stack. The id is appended
// to the content of the stack's last block when it fits; otherwise a fresh
// tail block is chained on and receives the id at offset 0.
func (s *Storage) markAsFree(freeID uint32) error {
	last, err := s.lastFreeListBlock()
	if err != nil {
		return err
	}

	contentLen, err := last.Header(block.HeaderBlockContentLength)
	if err != nil {
		return err
	}
	if contentLen%4 != 0 {
		_ = last.Release()
		return utils.Corrupted("free stack block %d content length %d not a multiple of 4", last.ID(), contentLen)
	}

	buf := utils.GetBuffer(4)
	defer utils.ReleaseBuffer(buf)
	utils.PutUint32(buf, freeID)

	if int(contentLen)+4 <= s.blocks.Params().ContentSize() {
		if err := last.WriteContent(buf, 0, int(contentLen), 4); err != nil {
			return err
		}
		if err := last.SetHeader(block.HeaderBlockContentLength, contentLen+4); err != nil {
			return err
		}
		return last.Release()
	}

	// The last block is full; chain on a new tail. Extending the stream here
	// (rather than popping the stack) keeps push and pop from recursing.
	tail, err := s.blocks.CreateNew()
	if err != nil {
		return err
	}
	if err := tail.SetHeader(block.HeaderPreviousBlockID, int64(last.ID())); err != nil {
		return err
	}
	if err := last.SetHeader(block.HeaderNextBlockID, int64(tail.ID())); err != nil {
		return err
	}
	if err := tail.WriteContent(buf, 0, 0, 4); err != nil {
		return err
	}
	if err := tail.SetHeader(block.HeaderBlockContentLength, 4); err != nil {
		return err
	}
	if err := last.Release(); err != nil {
		return err
	}
	return tail.Release()
}

// tryFindFreeBlock pops a reusable block id off the free-block stack.
// Returns ok=false when the stack is empty.
func (s *Storage) tryFindFreeBlock() (uint32, bool, error) {
	prev, last, err := s.lastTwoFreeListBlocks()
	if err != nil {
		return 0, false, err
	}

	contentLen, err := last.Header(block.HeaderBlockContentLength)
	if err != nil {
		return 0, false, err
	}
	if contentLen%4 != 0 {
		s.releaseBoth(prev, last)
		return 0, false, utils.Corrupted("free stack block %d content length %d not a multiple of 4", last.ID(), contentLen)
	}

	buf := utils.GetBuffer(4)
	defer utils.ReleaseBuffer(buf)

	if contentLen > 0 {
		if err := last.ReadContent(buf, 0, int(contentLen)-4, 4); err != nil {
			return 0, false, err
		}
		id := utils.Uint32(buf)
		if err := last.SetHeader(block.HeaderBlockContentLength, contentLen-4); err != nil {
			return 0, false, err
		}
		if prev != nil {
			if err := prev.Release(); err != nil {
				return 0, false, err
			}
		}
		if err := last.Release(); err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	if prev == nil {
		// Single empty block: the stack holds nothing.
		return 0, false, last.Release()
	}

	// The tail block is empty. Pop the predecessor's top entry and record the
	// tail's own id in the vacated slot, so the tail itself is handed out on
	// the next pop; the chain shrinks by one block.
	prevLen, err := prev.Header(block.HeaderBlockContentLength)
	if err != nil {
		return 0, false, err
	}
	if prevLen%4 != 0 || prevLen == 0 {
		s.releaseBoth(prev, last)
		return 0, false, utils.Corrupted("free stack block %d content length %d invalid before tail collapse", prev.ID(), prevLen)
	}

	if err := prev.ReadContent(buf, 0, int(prevLen)-4, 4); err != nil {
		return 0, false, err
	}
	id := utils.Uint32(buf)

	utils.PutUint32(buf, last.ID())
	if err := prev.WriteContent(buf, 0, int(prevLen)-4, 4); err != nil {
		return 0, false, err
	}
	if err := prev.SetHeader(block.HeaderNextBlockID, 0); err != nil {
		return 0, false, err
	}
	if err := last.SetHeader(block.HeaderPreviousBlockID, 0); err != nil {
		return 0, false, err
	}
	if err := last.SetHeader(block.HeaderIsDeleted, 1); err != nil {
		return 0, false, err
	}
	if err := prev.Release(); err != nil {
		return 0, false, err
	}
	if err := last.Release(); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// lastFreeListBlock walks the free record chain and returns its tail block.
func (s *Storage) lastFreeListBlock() (*block.Block, error) {
	prev, last, err := s.lastTwoFreeListBlocks()
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if err := prev.Release(); err != nil {
			return nil, err
		}
	}
	return last, nil
}

// lastTwoFreeListBlocks returns the tail of the free record chain and its
// predecessor (nil when the chain has a single block). Intermediate blocks
// are released on the way; when prev is non-nil the caller owns both.
func (s *Storage) lastTwoFreeListBlocks() (prev, last *block.Block, err error) {
	cur, err := s.blocks.Find(FreeListRecordID)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil {
		return nil, nil, utils.Corrupted("free-block record missing")
	}

	for {
		next, err := cur.Header(block.HeaderNextBlockID)
		if err != nil {
			return nil, nil, err
		}
		if next == 0 {
			return prev, cur, nil
		}

		nb, err := s.blocks.Find(uint32(next)) //nolint:gosec // G115: block ids are assigned as uint32
		if err != nil {
			return nil, nil, err
		}
		if nb == nil {
			return nil, nil, utils.Corrupted("free stack chain link %d missing", next)
		}
		if prev != nil {
			if err := prev.Release(); err != nil {
				return nil, nil, err
			}
		}
		prev = cur
		cur = nb
	}
}

func (s *Storage) releaseBoth(prev, last *block.Block) {
	if prev != nil {
		_ = prev.Release()
	}
	if last != nil {
		_ = last.Release()
	}
}
