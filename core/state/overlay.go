package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"

	"lukechampine.com/blake3"

	"github.com/propsproject/props-protocol-sub000/storage"
)

// KV is the raw key/value surface the Manager operates on. Get returns a nil
// slice without error when the key is absent.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Overlay buffers writes on top of a committed database. Nothing reaches the
// database until Commit; Discard drops every staged write.
type Overlay struct {
	base   storage.Database
	writes map[string]pendingWrite
}

// NewOverlay stages writes above base.
func NewOverlay(base storage.Database) *Overlay {
	return &Overlay{base: base, writes: make(map[string]pendingWrite)}
}

// Get reads through the staged writes before falling back to the database.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if w, ok := o.writes[string(key)]; ok {
		if w.deleted {
			return nil, nil
		}
		return append([]byte(nil), w.value...), nil
	}
	if o.base == nil {
		return nil, nil
	}
	value, err := o.base.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// Put stages a write.
func (o *Overlay) Put(key, value []byte) error {
	o.writes[string(key)] = pendingWrite{value: append([]byte(nil), value...)}
	return nil
}

// Delete stages a removal.
func (o *Overlay) Delete(key []byte) error {
	o.writes[string(key)] = pendingWrite{deleted: true}
	return nil
}

// Dirty reports the number of staged keys.
func (o *Overlay) Dirty() int { return len(o.writes) }

// Discard drops all staged writes.
func (o *Overlay) Discard() {
	o.writes = make(map[string]pendingWrite)
}

// Commit writes every staged key to the database as one batch and returns a
// blake3 digest of the ordered change set. The overlay is empty afterwards.
func (o *Overlay) Commit() ([32]byte, error) {
	var digest [32]byte
	if o.base == nil {
		return digest, errors.New("state: overlay has no backing database")
	}
	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare([]byte(keys[i]), []byte(keys[j])) < 0 })

	hasher := blake3.New(32, nil)
	batch := storage.NewBatch()
	var lenBuf [8]byte
	for _, k := range keys {
		w := o.writes[k]
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(k)))
		hasher.Write(lenBuf[:])
		hasher.Write([]byte(k))
		if w.deleted {
			hasher.Write([]byte{0})
			batch.Delete([]byte(k))
			continue
		}
		hasher.Write([]byte{1})
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(w.value)))
		hasher.Write(lenBuf[:])
		hasher.Write(w.value)
		batch.Put([]byte(k), w.value)
	}
	if err := o.base.Write(batch); err != nil {
		return digest, err
	}
	copy(digest[:], hasher.Sum(nil))
	o.writes = make(map[string]pendingWrite)
	return digest, nil
}
