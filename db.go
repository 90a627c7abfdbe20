// Package pagedb provides a single-node, embedded, disk-backed record store
// layered under B-tree indexes. Rows are opaque byte payloads stored in a
// main record file; a unique primary index maps a 16-byte row id to the
// backing record, and a non-unique secondary index maps a composite
// (nationality, age) key to the same records.
//
// The store is single-threaded and synchronous. A database path P owns
// three files: P (records), P.pidx (primary index) and P.sidx (secondary
// index). Two handles must not be opened on the same path at once.
package pagedb

import (
	"errors"
	"fmt"
	"iter"
	"os"

	"github.com/scigolib/pagedb/internal/block"
	"github.com/scigolib/pagedb/internal/btree"
	"github.com/scigolib/pagedb/internal/record"
	"github.com/scigolib/pagedb/internal/utils"
)

// File name suffixes for the index files of a database path.
const (
	PrimaryIndexSuffix   = ".pidx"
	SecondaryIndexSuffix = ".sidx"
)

// Exported error sentinels of the public surface.
var (
	// ErrKeyExists is returned by Insert when the row id is already present.
	ErrKeyExists = utils.ErrKeyExists

	// ErrNotFound is returned by Delete for an absent row.
	ErrNotFound = utils.ErrNotFound

	// ErrDisposed is returned by any call on a closed handle.
	ErrDisposed = utils.ErrDisposed
)

// Row is the unit of storage at the database boundary. Data is the
// caller-serialized payload, treated as opaque bytes; ID, Nationality and
// Age feed the two indexes.
type Row struct {
	ID          RowID
	Nationality string
	Age         int32
	Data        []byte
}

// DB is an open database handle. It is not safe for concurrent use and is
// single-use: after Close every operation fails with ErrDisposed.
type DB struct {
	main       *record.Storage
	mainStream *block.FileStream
	pidxStream *block.FileStream
	sidxStream *block.FileStream

	primary   *btree.Tree[RowID, uint32]
	secondary *btree.Tree[CompositeKey, uint32]

	closed bool
}

// Open opens or creates the database at path with default options.
func Open(path string) (*DB, error) {
	return OpenWith(path, DefaultOptions())
}

// OpenWith opens or creates the database at path.
func OpenWith(path string, opts Options) (*DB, error) {
	if path == "" {
		return nil, errors.New("empty database path")
	}
	if err := opts.Validate(); err != nil {
		return nil, utils.WrapError("invalid options", err)
	}

	db := &DB{}
	ok := false
	defer func() {
		if !ok {
			db.closeStreams()
		}
	}()

	mainRecords, mainStream, err := openRecordFile(path, opts.mainParams())
	if err != nil {
		return nil, utils.WrapError("main file open failed", err)
	}
	db.main = mainRecords
	db.mainStream = mainStream

	pidxRecords, pidxStream, err := openRecordFile(path+PrimaryIndexSuffix, opts.indexParams())
	if err != nil {
		return nil, utils.WrapError("primary index open failed", err)
	}
	db.pidxStream = pidxStream

	primarySerializer, err := btree.NewNodeSerializer[RowID, uint32](rowIDCodec{}, btree.Uint32Codec{})
	if err != nil {
		return nil, err
	}
	primaryManager, err := btree.NewNodeManager(pidxRecords, primarySerializer, compareRowIDs, opts.MinEntriesPerNode)
	if err != nil {
		return nil, utils.WrapError("primary index load failed", err)
	}
	db.primary = btree.NewTree(primaryManager, true)

	sidxRecords, sidxStream, err := openRecordFile(path+SecondaryIndexSuffix, opts.indexParams())
	if err != nil {
		return nil, utils.WrapError("secondary index open failed", err)
	}
	db.sidxStream = sidxStream

	secondarySerializer, err := btree.NewNodeSerializer[CompositeKey, uint32](compositeKeyCodec{}, btree.Uint32Codec{})
	if err != nil {
		return nil, err
	}
	secondaryManager, err := btree.NewNodeManager(sidxRecords, secondarySerializer, compareCompositeKeys, opts.MinEntriesPerNode)
	if err != nil {
		return nil, utils.WrapError("secondary index load failed", err)
	}
	db.secondary = btree.NewTree(secondaryManager, false)

	ok = true
	return db, nil
}

func openRecordFile(path string, params block.Params) (*record.Storage, *block.FileStream, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644) //nolint:gosec // G304: user-provided database path is intentional
	if err != nil {
		return nil, nil, err
	}
	stream := block.NewFileStream(f)
	blocks, err := block.NewStorage(stream, params)
	if err != nil {
		_ = stream.Close()
		return nil, nil, err
	}
	records, err := record.NewStorage(blocks)
	if err != nil {
		_ = stream.Close()
		return nil, nil, err
	}
	return records, stream, nil
}

// Insert stores a row. The row id must not already be present.
func (db *DB) Insert(row Row) error {
	if db.closed {
		return ErrDisposed
	}

	if _, found, err := db.primary.Get(row.ID); err != nil {
		return err
	} else if found {
		return fmt.Errorf("row id %x: %w", row.ID, ErrKeyExists)
	}

	recordID, err := db.main.CreateBytes(row.Data)
	if err != nil {
		return err
	}
	if err := db.primary.Insert(row.ID, recordID); err != nil {
		_ = db.main.Delete(recordID)
		return err
	}
	if err := db.secondary.Insert(compositeKeyOf(row), recordID); err != nil {
		return err
	}
	return nil
}

// Find returns the payload of the row with the given id, or nil when the id
// is not present.
func (db *DB) Find(id RowID) ([]byte, error) {
	if db.closed {
		return nil, ErrDisposed
	}
	entry, found, err := db.primary.Get(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	data, err := db.main.Find(entry.Value)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, utils.Corrupted("row %x points at missing record %d", id, entry.Value)
	}
	return data, nil
}

// FindBy lazily yields the payloads of all rows with exactly the given
// nationality and age, in index order. The sequence is single-pass.
func (db *DB) FindBy(nationality string, age int32) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if db.closed {
			yield(nil, ErrDisposed)
			return
		}
		key := CompositeKey{Nationality: nationality, Age: age}
		for entry, err := range db.secondary.LargerThanOrEq(key) {
			if err != nil {
				yield(nil, err)
				return
			}
			if compareCompositeKeys(entry.Key, key) > 0 {
				return
			}
			data, err := db.main.Find(entry.Value)
			if err != nil {
				yield(nil, err)
				return
			}
			if data == nil {
				yield(nil, utils.Corrupted("index points at missing record %d", entry.Value))
				return
			}
			if !yield(data, nil) {
				return
			}
		}
	}
}

// Delete removes a row and both of its index entries. The row is addressed
// by its id; Nationality and Age must carry the values the row was inserted
// with so the secondary entry can be located.
func (db *DB) Delete(row Row) error {
	if db.closed {
		return ErrDisposed
	}

	entry, found, err := db.primary.Get(row.ID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("row id %x: %w", row.ID, ErrNotFound)
	}
	recordID := entry.Value

	if _, err := db.secondary.DeleteValue(compositeKeyOf(row), recordID, func(a, b uint32) bool { return a == b }); err != nil {
		return err
	}
	if _, err := db.primary.Delete(row.ID); err != nil {
		return err
	}
	return db.main.Delete(recordID)
}

// Close flushes and closes all three files. It is safe to call Close
// multiple times; any other operation after Close fails with ErrDisposed.
func (db *DB) Close() error {
	if db.closed {
		return nil // Already closed.
	}
	db.closed = true
	var firstErr error
	for _, s := range []*block.FileStream{db.mainStream, db.pidxStream, db.sidxStream} {
		if s == nil {
			continue
		}
		if err := s.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (db *DB) closeStreams() {
	for _, s := range []*block.FileStream{db.mainStream, db.pidxStream, db.sidxStream} {
		if s != nil {
			_ = s.Close()
		}
	}
}

func compositeKeyOf(row Row) CompositeKey {
	return CompositeKey{Nationality: row.Nationality, Age: row.Age}
}
