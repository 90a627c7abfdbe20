package pagedb

import (
	"fmt"

	"github.com/scigolib/pagedb/internal/block"
	"github.com/scigolib/pagedb/internal/btree"
)

// Defaults for the three storage files of a database.
const (
	// DefaultIndexBlockSize is the page size of the index files. Index
	// pages are large so a serialized tree node fits in few blocks.
	DefaultIndexBlockSize = 40960
)

// Options configures the page geometry and tree fan-out of a database.
// The zero value is not valid; start from DefaultOptions.
type Options struct {
	// BlockSize and BlockHeaderSize shape the main data file.
	BlockSize       int
	BlockHeaderSize int

	// IndexBlockSize and IndexBlockHeaderSize shape both index files.
	IndexBlockSize       int
	IndexBlockHeaderSize int

	// MinEntriesPerNode is the tree parameter T: non-root nodes hold
	// between T and 2T entries.
	MinEntriesPerNode int
}

// DefaultOptions returns the standard configuration: 4 KiB data pages,
// 40 KiB index pages, 48-byte headers, T = 36.
func DefaultOptions() Options {
	return Options{
		BlockSize:            block.DefaultBlockSize,
		BlockHeaderSize:      block.DefaultHeaderSize,
		IndexBlockSize:       DefaultIndexBlockSize,
		IndexBlockHeaderSize: block.DefaultHeaderSize,
		MinEntriesPerNode:    btree.DefaultMinEntriesPerNode,
	}
}

// Validate checks both page geometries and the tree parameter.
func (o Options) Validate() error {
	if err := o.mainParams().Validate(); err != nil {
		return err
	}
	if err := o.indexParams().Validate(); err != nil {
		return err
	}
	if o.MinEntriesPerNode < 1 {
		return fmt.Errorf("min entries per node %d must be at least 1", o.MinEntriesPerNode)
	}
	return nil
}

func (o Options) mainParams() block.Params {
	return block.Params{BlockSize: o.BlockSize, HeaderSize: o.BlockHeaderSize}
}

func (o Options) indexParams() block.Params {
	return block.Params{BlockSize: o.IndexBlockSize, HeaderSize: o.IndexBlockHeaderSize}
}
