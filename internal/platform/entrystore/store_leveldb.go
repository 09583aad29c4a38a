package entrystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

const (
	entryPrefix = "e/"
	linkPrefix  = "l/"
)

// LevelDBStore persists entries in a local LevelDB database.
//
// Layout:
//
//	e/<hash>                      -> entry bytes
//	l/<linkType>/<anchor>/<hash>  -> empty
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) Put(_ context.Context, data []byte) (id.Hash, error) {
	hash := HashOf(data)
	key := []byte(entryPrefix + string(hash))
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return "", fmt.Errorf("check entry: %w", err)
	}
	if ok {
		return hash, nil
	}
	if err := s.db.Put(key, data, nil); err != nil {
		return "", fmt.Errorf("put entry: %w", err)
	}
	return hash, nil
}

func (s *LevelDBStore) Get(_ context.Context, hash id.Hash) ([]byte, error) {
	data, err := s.db.Get([]byte(entryPrefix+string(hash)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if err := verify(hash, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *LevelDBStore) Link(_ context.Context, anchor string, target id.Hash, linkType string) error {
	if strings.Contains(anchor, "/") || strings.Contains(linkType, "/") {
		return fmt.Errorf("link anchor and type must not contain '/'")
	}
	key := linkPrefix + linkType + "/" + anchor + "/" + string(target)
	if err := s.db.Put([]byte(key), nil, nil); err != nil {
		return fmt.Errorf("put link: %w", err)
	}
	return nil
}

// Links returns targets in hash order.
func (s *LevelDBStore) Links(_ context.Context, anchor string, linkType string) ([]id.Hash, error) {
	prefix := linkPrefix + linkType + "/" + anchor + "/"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var out []id.Hash
	for iter.Next() {
		out = append(out, id.Hash(strings.TrimPrefix(string(iter.Key()), prefix)))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return out, nil
}
