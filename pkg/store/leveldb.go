package store

import (
	dbm "github.com/cometbft/cometbft-db"

	"github.com/axelar-network/solana-gateway-core/pkg/kvdb"
)

// LevelDB is a store.KV backed by CometBFT's goleveldb implementation,
// used by cmd/gatewayd, in the DATA_DIR directory, when IN_MEMORY_STORE is
// false.
type LevelDB struct {
	adapter *kvdb.KVAdapter
}

// OpenLevelDB opens (creating if absent) a goleveldb database at dir under
// the given name.
func OpenLevelDB(name, dir string) (*LevelDB, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, err
	}
	return &LevelDB{adapter: kvdb.NewKVAdapter(db)}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.adapter.Get(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.adapter.Has(key)
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.adapter.Set(key, value)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.adapter.Delete(key)
}
