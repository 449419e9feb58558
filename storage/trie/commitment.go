package trie

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"stakevault/storage"
)

var errEmptyValue = errors.New("trie: empty value")

type leaf struct {
	key   []byte
	value []byte
}

// Commitment accumulates key/value pairs and reports the Merkle Patricia
// root over them. Keys are hashed with keccak256 before insertion, as in a
// secure trie.
//
// Commitment is not safe for concurrent use.
type Commitment struct {
	leaves []leaf
	index  map[common.Hash]int
}

// NewCommitment returns an empty commitment.
func NewCommitment() *Commitment {
	return &Commitment{index: make(map[common.Hash]int)}
}

// Add records value under key. A later Add for the same key replaces the
// earlier value.
func (c *Commitment) Add(key, value []byte) error {
	if len(value) == 0 {
		return errEmptyValue
	}
	hashed := crypto.Keccak256Hash(key)
	if idx, ok := c.index[hashed]; ok {
		c.leaves[idx].value = append([]byte(nil), value...)
		return nil
	}
	c.index[hashed] = len(c.leaves)
	c.leaves = append(c.leaves, leaf{key: hashed.Bytes(), value: append([]byte(nil), value...)})
	return nil
}

// Len returns the number of distinct keys.
func (c *Commitment) Len() int { return len(c.leaves) }

// Root hashes the accumulated pairs into a throwaway in-memory trie. The
// empty commitment yields the canonical empty trie root.
func (c *Commitment) Root() (common.Hash, error) {
	if len(c.leaves) == 0 {
		return gethtypes.EmptyRootHash, nil
	}
	trieDB := triedb.NewDatabase(rawdb.NewDatabase(memorydb.New()), triedb.HashDefaults)
	tr, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	for _, l := range c.leaves {
		if err := tr.Update(l.key, l.value); err != nil {
			return common.Hash{}, err
		}
	}
	return tr.Hash(), nil
}

// RootOf commits to every entry of db under any of the given prefixes and
// returns the root together with the number of keys committed.
func RootOf(db storage.Database, prefixes ...[]byte) (common.Hash, int, error) {
	c := NewCommitment()
	for _, prefix := range prefixes {
		err := db.Iterate(prefix, func(key, value []byte) error {
			return c.Add(key, value)
		})
		if err != nil {
			return common.Hash{}, 0, fmt.Errorf("trie: iterate %q: %w", prefix, err)
		}
	}
	root, err := c.Root()
	return root, c.Len(), err
}
