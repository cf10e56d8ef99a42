package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore keeps documents in process. Each primitive holds the
// collection lock for its whole duration, so single calls are atomic.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

func NewMemory() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{unique: uniqueFields[name]}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

type memoryCollection struct {
	mu     sync.RWMutex
	docs   []bson.Raw
	unique []string
}

// conflicts reports whether doc repeats a unique field value of any stored
// document other than the one at index skip. Callers hold the lock.
func (c *memoryCollection) conflicts(doc bson.Raw, skip int) bool {
	for _, field := range c.unique {
		v, err := doc.LookupErr(field)
		if err != nil {
			continue
		}
		for i, other := range c.docs {
			if i == skip {
				continue
			}
			if ov, err := other.LookupErr(field); err == nil && ov.Equal(v) {
				return true
			}
		}
	}
	return false
}

func marshalFilter(filter Filter) (bson.Raw, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	return bson.Marshal(bson.M(filter))
}

func matches(doc, filter bson.Raw) bool {
	if filter == nil {
		return true
	}
	elems, err := filter.Elements()
	if err != nil {
		return false
	}
	for _, e := range elems {
		v, err := doc.LookupErr(e.Key())
		if err != nil || !v.Equal(e.Value()) {
			return false
		}
	}
	return true
}

func (c *memoryCollection) FindOne(_ context.Context, filter Filter, out any) error {
	f, err := marshalFilter(filter)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, doc := range c.docs {
		if matches(doc, f) {
			return decodeStrict(doc, out)
		}
	}
	return ErrNotFound
}

func (c *memoryCollection) FindMany(_ context.Context, filter Filter, out any) error {
	f, err := marshalFilter(filter)
	if err != nil {
		return err
	}

	c.mu.RLock()
	var found []bson.Raw
	for _, doc := range c.docs {
		if matches(doc, f) {
			found = append(found, doc)
		}
	}
	c.mu.RUnlock()

	return decodeAll(found, out)
}

func (c *memoryCollection) InsertOne(_ context.Context, doc any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conflicts(raw, -1) {
		return ErrDuplicate
	}
	c.docs = append(c.docs, raw)
	return nil
}

func (c *memoryCollection) InsertMany(_ context.Context, docs []any) error {
	raws := make([]bson.Raw, 0, len(docs))
	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// all or nothing: a conflict anywhere in the batch drops the whole batch
	n := len(c.docs)
	for _, raw := range raws {
		if c.conflicts(raw, -1) {
			c.docs = c.docs[:n]
			return ErrDuplicate
		}
		c.docs = append(c.docs, raw)
	}
	return nil
}

func (c *memoryCollection) UpdateOne(_ context.Context, filter Filter, set map[string]any) (bool, error) {
	f, err := marshalFilter(filter)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.docs {
		if !matches(doc, f) {
			continue
		}
		updated, err := applySet(doc, set)
		if err != nil {
			return false, err
		}
		if c.conflicts(updated, i) {
			return false, ErrDuplicate
		}
		c.docs[i] = updated
		return true, nil
	}
	return false, nil
}

func applySet(doc bson.Raw, set map[string]any) (bson.Raw, error) {
	var d bson.D
	if err := bson.Unmarshal(doc, &d); err != nil {
		return nil, err
	}

	pending := make(map[string]any, len(set))
	for k, v := range set {
		pending[k] = v
	}
	for i := range d {
		if v, ok := pending[d[i].Key]; ok {
			d[i].Value = v
			delete(pending, d[i].Key)
		}
	}
	for k, v := range pending {
		d = append(d, bson.E{Key: k, Value: v})
	}

	return bson.Marshal(d)
}

func (c *memoryCollection) DeleteOne(_ context.Context, filter Filter) (bool, error) {
	f, err := marshalFilter(filter)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.docs {
		if matches(doc, f) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (c *memoryCollection) DeleteMany(_ context.Context, filter Filter) (int64, error) {
	f, err := marshalFilter(filter)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.docs[:0]
	var removed int64
	for _, doc := range c.docs {
		if matches(doc, f) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return removed, nil
}

func (c *memoryCollection) Count(_ context.Context, filter Filter) (int64, error) {
	f, err := marshalFilter(filter)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, doc := range c.docs {
		if matches(doc, f) {
			n++
		}
	}
	return n, nil
}
