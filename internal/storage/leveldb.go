package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB is a persistent Store. Commit maps onto a single leveldb.Batch
// write, which LevelDB applies atomically.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(_ context.Context, key string) ([]byte, error) {
	v, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (l *LevelDB) Commit(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Delete {
			batch.Delete([]byte(op.Key))
			continue
		}
		batch.Put([]byte(op.Key), op.Value)
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDB) Ping(context.Context) error {
	_, err := l.db.GetProperty("leveldb.stats")
	return err
}

// Close closes the database connection.
func (l *LevelDB) Close() error {
	return l.db.Close()
}
