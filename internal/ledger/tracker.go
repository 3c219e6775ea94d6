package ledger

import "sync"

// Entity is anything a ChangeTracker can follow.
type Entity interface {
	EntityID() string
}

type changeOp int

const (
	opNew changeOp = iota
	opDirty
	opDeleted
)

type change[T Entity] struct {
	op     changeOp
	entity T
}

// Changes is a snapshot of the mutations recorded since the last clear.
type Changes[T Entity] struct {
	New     []T
	Dirty   []T
	Deleted []T

	log []change[T]
}

// Empty reports whether there is nothing to flush.
func (c Changes[T]) Empty() bool {
	return len(c.New) == 0 && len(c.Dirty) == 0 && len(c.Deleted) == 0
}

// collapse states per entity id
const (
	stUntouched = iota
	stInsert
	stUpdate
	stDelete
	stVanished // inserted and deleted before a flush
)

// Collapse folds repeated registrations of the same entity into the single
// operation a store has to perform, replaying them in registration order:
//
//	new, dirty       -> new
//	new, deleted     -> nothing
//	dirty, deleted   -> deleted
//	deleted, new     -> dirty (the row exists and must be rewritten)
//
// The latest registered value of each entity wins and first-seen order is kept.
func (c Changes[T]) Collapse() Changes[T] {
	log := c.log
	if log == nil {
		for _, e := range c.New {
			log = append(log, change[T]{op: opNew, entity: e})
		}
		for _, e := range c.Dirty {
			log = append(log, change[T]{op: opDirty, entity: e})
		}
		for _, e := range c.Deleted {
			log = append(log, change[T]{op: opDeleted, entity: e})
		}
	}

	type entry struct {
		state int
		value T
	}
	var order []string
	entries := make(map[string]*entry)

	for _, ch := range log {
		id := ch.entity.EntityID()
		e, ok := entries[id]
		if !ok {
			e = &entry{}
			entries[id] = e
			order = append(order, id)
		}
		e.value = ch.entity

		switch ch.op {
		case opNew:
			switch e.state {
			case stUntouched, stVanished:
				e.state = stInsert
			case stDelete:
				e.state = stUpdate
			}
		case opDirty:
			if e.state == stUntouched {
				e.state = stUpdate
			}
		case opDeleted:
			switch e.state {
			case stInsert:
				e.state = stVanished
			case stUntouched, stUpdate:
				e.state = stDelete
			}
		}
	}

	var out Changes[T]
	for _, id := range order {
		e := entries[id]
		switch e.state {
		case stInsert:
			out.New = append(out.New, e.value)
		case stUpdate:
			out.Dirty = append(out.Dirty, e.value)
		case stDelete:
			out.Deleted = append(out.Deleted, e.value)
		}
	}
	return out
}

// ChangeTracker collects new, dirty and deleted entities in registration
// order. Registering never de-duplicates; use Changes.Collapse for that.
type ChangeTracker[T Entity] struct {
	mu  sync.Mutex
	log []change[T]
}

func NewChangeTracker[T Entity]() *ChangeTracker[T] {
	return &ChangeTracker[T]{}
}

func (t *ChangeTracker[T]) RegisterNew(e T)     { t.register(opNew, e) }
func (t *ChangeTracker[T]) RegisterDirty(e T)   { t.register(opDirty, e) }
func (t *ChangeTracker[T]) RegisterDeleted(e T) { t.register(opDeleted, e) }

func (t *ChangeTracker[T]) register(op changeOp, e T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = append(t.log, change[T]{op: op, entity: e})
}

// Changes returns a snapshot of the recorded lists.
func (t *ChangeTracker[T]) Changes() Changes[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := Changes[T]{log: append([]change[T](nil), t.log...)}
	for _, ch := range t.log {
		switch ch.op {
		case opNew:
			c.New = append(c.New, ch.entity)
		case opDirty:
			c.Dirty = append(c.Dirty, ch.entity)
		case opDeleted:
			c.Deleted = append(c.Deleted, ch.entity)
		}
	}
	return c
}

// Clear drops every recorded change. Stores call it only after a successful write.
func (t *ChangeTracker[T]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = nil
}
