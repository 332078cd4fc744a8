package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides typed CRUD with secondary indexes on top of Badger.
// Records live at prefix+id and index entries at prefix+"idx:"+name+":"+value.
type Entity[T any] struct {
	db      *Badger
	prefix  string
	indexes []Index[T]
}

// Index is a secondary index on an entity.
type Index[T any] struct {
	keyGen          func(*T) []string
	lookupTransform func(string) string
	name            string
}

// NewEntity creates an entity stored under prefix.
func NewEntity[T any](db *Badger, prefix string) *Entity[T] {
	return &Entity[T]{db: db, prefix: prefix}
}

// WithIndex adds a unique secondary index.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen})
	return e
}

// WithIndexTransform adds a unique secondary index whose lookups pass
// through transform first (e.g. case folding).
func (e *Entity[T]) WithIndexTransform(name string, keyGen func(*T) []string, transform func(string) string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen, lookupTransform: transform})
	return e
}

func (e *Entity[T]) key(entityID string) []byte {
	return []byte(e.prefix + entityID)
}

func (e *Entity[T]) indexKey(name, value string) []byte {
	return []byte(e.prefix + "idx:" + name + ":" + value)
}

// indexKeys lists every index key an entity occupies.
func (e *Entity[T]) indexKeys(entity *T) map[string]string {
	keys := make(map[string]string)
	for _, idx := range e.indexes {
		for _, v := range idx.keyGen(entity) {
			if v == "" {
				continue
			}
			keys[string(e.indexKey(idx.name, v))] = idx.name
		}
	}
	return keys
}

func (e *Entity[T]) read(txn *badger.Txn, entityID string) (*T, error) {
	item, err := txn.Get(e.key(entityID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entity)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	return &entity, nil
}

// claimIndexes fails with ErrAlreadyExists when a key in want is held by
// another entity. Keys in owned are already held by this entity.
func claimIndexes(txn *badger.Txn, want, owned map[string]string) error {
	for k, name := range want {
		if _, ok := owned[k]; ok {
			continue
		}
		_, err := txn.Get([]byte(k))
		if err == nil {
			return fmt.Errorf("index %s conflict: %w", name, ErrAlreadyExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check index key: %w", err)
		}
	}
	return nil
}

// Create stores a new entity. Returns ErrAlreadyExists if the ID or any
// unique index value is taken.
func (e *Entity[T]) Create(ctx context.Context, entityID string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	return e.db.db.Update(func(txn *badger.Txn) error {
		if _, err := e.read(txn, entityID); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		idxKeys := e.indexKeys(entity)
		if err := claimIndexes(txn, idxKeys, nil); err != nil {
			return err
		}

		if err := txn.Set(e.key(entityID), data); err != nil {
			return fmt.Errorf("set key: %w", err)
		}
		for k := range idxKeys {
			if err := txn.Set([]byte(k), []byte(entityID)); err != nil {
				return fmt.Errorf("set index key: %w", err)
			}
		}
		return nil
	})
}

// Get returns the entity or ErrNotFound.
func (e *Entity[T]) Get(ctx context.Context, entityID string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *T
	err := e.db.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = e.read(txn, entityID)
		return err
	})
	return out, err
}

// GetByIndex resolves value through the named index.
func (e *Entity[T]) GetByIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, idx := range e.indexes {
		if idx.name == indexName && idx.lookupTransform != nil {
			value = idx.lookupTransform(value)
			break
		}
	}

	var out *T
	err := e.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.indexKey(indexName, value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		entityID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		out, err = e.read(txn, string(entityID))
		return err
	})
	return out, err
}

// Update replaces an existing entity and moves its index entries.
func (e *Entity[T]) Update(ctx context.Context, entityID string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	return e.db.db.Update(func(txn *badger.Txn) error {
		old, err := e.read(txn, entityID)
		if err != nil {
			return err
		}

		oldKeys := e.indexKeys(old)
		newKeys := e.indexKeys(entity)
		if err := claimIndexes(txn, newKeys, oldKeys); err != nil {
			return err
		}

		for k := range oldKeys {
			if _, keep := newKeys[k]; keep {
				continue
			}
			if err := txn.Delete([]byte(k)); err != nil {
				return fmt.Errorf("delete old index key: %w", err)
			}
		}
		if err := txn.Set(e.key(entityID), data); err != nil {
			return fmt.Errorf("set key: %w", err)
		}
		for k := range newKeys {
			if err := txn.Set([]byte(k), []byte(entityID)); err != nil {
				return fmt.Errorf("set index key: %w", err)
			}
		}
		return nil
	})
}

// Delete removes an entity and its index entries. Deleting a missing
// entity is not an error.
func (e *Entity[T]) Delete(ctx context.Context, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return e.db.db.Update(func(txn *badger.Txn) error {
		old, err := e.read(txn, entityID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		for k := range e.indexKeys(old) {
			if err := txn.Delete([]byte(k)); err != nil {
				return fmt.Errorf("delete index key: %w", err)
			}
		}
		return txn.Delete(e.key(entityID))
	})
}

// List iterates all entities, skipping index entries.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		prefix := []byte(e.prefix)
		idxPrefix := e.prefix + "idx:"

		_ = e.db.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return err
				}
				if strings.HasPrefix(string(it.Item().Key()), idxPrefix) {
					continue
				}

				var entity T
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				}); err != nil {
					yield(nil, err)
					return err
				}
				if !yield(&entity, nil) {
					return nil
				}
			}
			return nil
		})
	}
}
