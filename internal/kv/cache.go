package kv

import (
	"bytes"
	"sort"
)

// Cache buffers writes over a parent Store. Nothing reaches the parent until
// Write is called; dropping the Cache discards every buffered write.
type Cache struct {
	parent Store
	dirty  map[string][]byte // nil value marks a delete
}

func NewCache(parent Store) *Cache {
	return &Cache{parent: parent, dirty: map[string][]byte{}}
}

func (c *Cache) Get(key []byte) ([]byte, error) {
	if v, ok := c.dirty[string(key)]; ok {
		if v == nil {
			return nil, nil
		}
		return bytes.Clone(v), nil
	}
	return c.parent.Get(key)
}

func (c *Cache) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	c.dirty[string(key)] = bytes.Clone(value)
	return nil
}

func (c *Cache) Delete(key []byte) error {
	c.dirty[string(key)] = nil
	return nil
}

func (c *Cache) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	merged := map[string][]byte{}
	if err := c.parent.Iterate(prefix, func(k, v []byte) error {
		merged[string(k)] = v
		return nil
	}); err != nil {
		return err
	}
	for k, v := range c.dirty {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), bytes.Clone(merged[k])); err != nil {
			return err
		}
	}
	return nil
}

// Ops returns the buffered writes in key order.
func (c *Cache) Ops() []Op {
	keys := make([]string, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make([]Op, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, Op{Key: []byte(k), Value: c.dirty[k]})
	}
	return ops
}

// Write flushes the buffered writes into the parent, as one batch when the
// parent supports it.
func (c *Cache) Write() error {
	ops := c.Ops()
	if len(ops) == 0 {
		return nil
	}
	if b, ok := c.parent.(Batcher); ok {
		if err := b.ApplyBatch(ops); err != nil {
			return err
		}
		c.dirty = map[string][]byte{}
		return nil
	}
	for _, op := range ops {
		var err error
		if op.Value == nil {
			err = c.parent.Delete(op.Key)
		} else {
			err = c.parent.Set(op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	c.dirty = map[string][]byte{}
	return nil
}

// Discard drops every buffered write.
func (c *Cache) Discard() { c.dirty = map[string][]byte{} }
