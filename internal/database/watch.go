package database

import (
	"context"
	"maps"
	"sync"
)

type watcher struct {
	id       int
	onChange func(Document, bool)
}

// watchHub fans committed writes out to in-process subscribers of the same key.
type watchHub struct {
	mu      sync.Mutex
	deliver sync.Mutex
	nextID  int
	subs    map[string][]watcher
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[string][]watcher)}
}

func watchKey(collection, key string) string {
	return collection + "/" + key
}

func (h *watchHub) add(collection, key string, onChange func(Document, bool)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	k := watchKey(collection, key)
	h.subs[k] = append(h.subs[k], watcher{id: id, onChange: onChange})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			list := h.subs[k]
			for i, w := range list {
				if w.id == id {
					h.subs[k] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(h.subs[k]) == 0 {
				delete(h.subs, k)
			}
		})
	}
}

func (h *watchHub) notify(collection, key string, doc Document, exists bool) {
	h.mu.Lock()
	list := append([]watcher(nil), h.subs[watchKey(collection, key)]...)
	h.mu.Unlock()
	if len(list) == 0 {
		return
	}

	// Deliveries are serialised so each subscriber sees changes in commit order.
	h.deliver.Lock()
	defer h.deliver.Unlock()
	for _, w := range list {
		w.onChange(maps.Clone(doc), exists)
	}
}

type getter interface {
	Get(ctx context.Context, collection, key string) (Document, bool, error)
}

// subscribe holds the delivery lock across the initial read and delivery; a write committed
// meanwhile is delivered after it. Writers notify only after commit.
func subscribe(ctx context.Context, store getter, hub *watchHub, collection, key string, onChange func(Document, bool)) (func(), error) {
	unsubscribe := hub.add(collection, key, onChange)

	hub.deliver.Lock()
	defer hub.deliver.Unlock()

	doc, exists, err := store.Get(ctx, collection, key)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	onChange(doc, exists)

	return unsubscribe, nil
}
