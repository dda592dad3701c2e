package store

import (
	"factorm/schema"
	"factorm/term"
)

// Index maintenance. Every bucket entry is also in the primary set: insert
// and remove touch the primary set and all covering indexes in the same
// logical operation.

func (st *Store) ensureIndex(s *schema.Schema, slot int) {
	if !st.Registered(s) {
		return
	}
	k := indexKey{schema: s, slot: slot}
	if _, ok := st.indexes[k]; ok {
		return
	}
	buckets := make(map[string][]*schema.Fact)
	for _, f := range st.sets[s].order {
		vk := term.ValueKey(f.At(slot))
		buckets[vk] = append(buckets[vk], f)
	}
	st.indexes[k] = buckets
}

func (st *Store) indexInsert(f *schema.Fact) {
	s := f.Schema()
	for i := 0; i < s.Arity(); i++ {
		k := indexKey{schema: s, slot: i}
		buckets, ok := st.indexes[k]
		if !ok {
			continue
		}
		vk := term.ValueKey(f.At(i))
		buckets[vk] = append(buckets[vk], f)
	}
}

func (st *Store) indexRemove(f *schema.Fact) {
	s := f.Schema()
	for i := 0; i < s.Arity(); i++ {
		k := indexKey{schema: s, slot: i}
		buckets, ok := st.indexes[k]
		if !ok {
			continue
		}
		vk := term.ValueKey(f.At(i))
		bucket := buckets[vk]
		for j, existing := range bucket {
			if existing == f {
				buckets[vk] = append(bucket[:j], bucket[j+1:]...)
				break
			}
		}
		if len(buckets[vk]) == 0 {
			delete(buckets, vk)
		}
	}
}

// HasIndex reports whether an index covers the (schema, slot) pair.
func (st *Store) HasIndex(s *schema.Schema, slot int) bool {
	_, ok := st.indexes[indexKey{schema: s, slot: slot}]
	return ok
}

// IndexBucket returns the facts of s whose indexed slot equals value. The
// second result is false when no index covers the slot, in which case the
// caller must fall back to a scan. The returned slice is shared; callers
// must not mutate it.
func (st *Store) IndexBucket(s *schema.Schema, slot int, value interface{}) ([]*schema.Fact, bool) {
	st.Materialize()
	buckets, ok := st.indexes[indexKey{schema: s, slot: slot}]
	if !ok {
		return nil, false
	}
	return buckets[term.ValueKey(value)], true
}
