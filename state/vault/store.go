package vault

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	nativevault "stakevault/native/vault"
	"stakevault/storage"
	"stakevault/storage/trie"
)

var (
	ledgerKey       = []byte("vault/ledger")
	shareSupplyKey  = []byte("vault/shares/supply")
	custodyKey      = []byte("vault/custody")
	genesisKey      = []byte("vault/genesis")
	cooldownPrefix  = []byte("vault/cooldown/")
	sharePrefix     = []byte("vault/shares/account/")
	assetPrefix     = []byte("vault/assets/")
	kvPrefix        = []byte("kv/")
	errTxClosed     = errors.New("vault store: transaction already finished")
	errEmptyKVKey   = errors.New("vault store: kv key must not be empty")
	errNilDatabase  = errors.New("vault store: database required")
	errCustodyShort = errors.New("vault store: custody balance below withdrawal")
)

// Store serialises vault mutations over a key/value database. Every Update
// runs against a buffered transaction whose writes reach the database in a
// single batch, or not at all.
type Store struct {
	mu sync.RWMutex
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) (*Store, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	return &Store{db: db}, nil
}

// Update runs fn in a read-write transaction. The buffered writes are
// committed only when fn returns nil.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s.db)
	if err := fn(tx); err != nil {
		tx.discard()
		return err
	}
	return tx.commit()
}

// View runs fn against a transaction whose writes are always discarded.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := newTx(s.db)
	defer tx.discard()
	return fn(tx)
}

// StateRoot commits to every committed vault and registry entry. Two stores
// holding the same state report the same root.
func (s *Store) StateRoot() (common.Hash, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return trie.RootOf(s.db, []byte("vault/"), kvPrefix)
}

// Close releases the underlying database.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx is a buffered view over the database. It satisfies the engine state,
// the token ledger and the access registry storage.
type Tx struct {
	db      storage.Database
	pending map[string]pendingWrite
	done    bool
}

func newTx(db storage.Database) *Tx {
	return &Tx{db: db, pending: make(map[string]pendingWrite)}
}

func (tx *Tx) discard() {
	tx.pending = nil
	tx.done = true
}

func (tx *Tx) commit() error {
	if tx.done {
		return errTxClosed
	}
	tx.done = true
	if len(tx.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.pending))
	for key := range tx.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, key := range keys {
		write := tx.pending[key]
		if write.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), write.value)
	}
	tx.pending = nil
	if err := tx.db.Write(batch); err != nil {
		return fmt.Errorf("vault store: commit: %w", err)
	}
	return nil
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if tx.done {
		return nil, false, errTxClosed
	}
	if write, ok := tx.pending[string(key)]; ok {
		if write.deleted {
			return nil, false, nil
		}
		return write.value, true, nil
	}
	value, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *Tx) put(key []byte, value interface{}) error {
	if tx.done {
		return errTxClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.pending[string(key)] = pendingWrite{value: encoded}
	return nil
}

func (tx *Tx) delete(key []byte) error {
	if tx.done {
		return errTxClosed
	}
	tx.pending[string(key)] = pendingWrite{deleted: true}
	return nil
}

func (tx *Tx) decode(key []byte, out interface{}) (bool, error) {
	data, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("vault store: decode %q: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) getUint(key []byte) (uint64, error) {
	var value uint64
	if _, err := tx.decode(key, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func (tx *Tx) putUint(key []byte, value uint64) error {
	if value == 0 {
		return tx.delete(key)
	}
	return tx.put(key, value)
}

func accountKey(prefix []byte, addr common.Address) []byte {
	key := make([]byte, 0, len(prefix)+common.AddressLength)
	key = append(key, prefix...)
	return append(key, addr.Bytes()...)
}

// KVGet decodes the value stored under key into out.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKVKey
	}
	return tx.decode(append(append([]byte(nil), kvPrefix...), key...), out)
}

// KVPut stores value under key.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKVKey
	}
	return tx.put(append(append([]byte(nil), kvPrefix...), key...), value)
}

// VaultLedger returns the stored ledger, or nil before genesis.
func (tx *Tx) VaultLedger() (*nativevault.Ledger, error) {
	ledger := new(nativevault.Ledger)
	ok, err := tx.decode(ledgerKey, ledger)
	if err != nil || !ok {
		return nil, err
	}
	return ledger, nil
}

// PutLedger persists the ledger.
func (tx *Tx) PutLedger(ledger *nativevault.Ledger) error {
	if ledger == nil {
		return errors.New("vault store: nil ledger")
	}
	return tx.put(ledgerKey, ledger)
}

// Cooldown returns the queue of addr, empty when nothing is stored.
func (tx *Tx) Cooldown(addr common.Address) (*nativevault.CooldownQueue, error) {
	queue := new(nativevault.CooldownQueue)
	if _, err := tx.decode(accountKey(cooldownPrefix, addr), queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// PutCooldown persists the queue of addr. Drained queues are removed.
func (tx *Tx) PutCooldown(addr common.Address, queue *nativevault.CooldownQueue) error {
	key := accountKey(cooldownPrefix, addr)
	if queue == nil || (queue.Available == 0 && len(queue.Entries) == 0) {
		return tx.delete(key)
	}
	return tx.put(key, queue)
}

// ShareSupply returns the total number of shares outstanding.
func (tx *Tx) ShareSupply() (uint64, error) { return tx.getUint(shareSupplyKey) }

// ShareBalance returns the shares held by addr.
func (tx *Tx) ShareBalance(addr common.Address) (uint64, error) {
	return tx.getUint(accountKey(sharePrefix, addr))
}

// AssetBalance returns the base assets held by addr outside the vault.
func (tx *Tx) AssetBalance(addr common.Address) (uint64, error) {
	return tx.getUint(accountKey(assetPrefix, addr))
}

// Custody returns the base assets held by the vault.
func (tx *Tx) Custody() (uint64, error) { return tx.getUint(custodyKey) }

// MintShares credits amount new shares to addr.
func (tx *Tx) MintShares(to common.Address, amount uint64) error {
	supply, err := tx.ShareSupply()
	if err != nil {
		return err
	}
	balance, err := tx.ShareBalance(to)
	if err != nil {
		return err
	}
	if supply+amount < supply || balance+amount < balance {
		return nativevault.ErrOverflow
	}
	if err := tx.putUint(shareSupplyKey, supply+amount); err != nil {
		return err
	}
	return tx.putUint(accountKey(sharePrefix, to), balance+amount)
}

// BurnShares destroys amount shares held by addr.
func (tx *Tx) BurnShares(from common.Address, amount uint64) error {
	supply, err := tx.ShareSupply()
	if err != nil {
		return err
	}
	balance, err := tx.ShareBalance(from)
	if err != nil {
		return err
	}
	if balance < amount || supply < amount {
		return nativevault.ErrInsufficientShares
	}
	if err := tx.putUint(shareSupplyKey, supply-amount); err != nil {
		return err
	}
	return tx.putUint(accountKey(sharePrefix, from), balance-amount)
}

// TransferAssetsIn moves amount from addr into vault custody.
func (tx *Tx) TransferAssetsIn(from common.Address, amount uint64) error {
	balance, err := tx.AssetBalance(from)
	if err != nil {
		return err
	}
	if balance < amount {
		return nativevault.ErrInsufficientAssets
	}
	custody, err := tx.Custody()
	if err != nil {
		return err
	}
	if custody+amount < custody {
		return nativevault.ErrOverflow
	}
	if err := tx.putUint(accountKey(assetPrefix, from), balance-amount); err != nil {
		return err
	}
	return tx.putUint(custodyKey, custody+amount)
}

// TransferAssetsOut pays amount from vault custody to addr.
func (tx *Tx) TransferAssetsOut(to common.Address, amount uint64) error {
	custody, err := tx.Custody()
	if err != nil {
		return err
	}
	if custody < amount {
		return errCustodyShort
	}
	balance, err := tx.AssetBalance(to)
	if err != nil {
		return err
	}
	if balance+amount < balance {
		return nativevault.ErrOverflow
	}
	if err := tx.putUint(custodyKey, custody-amount); err != nil {
		return err
	}
	return tx.putUint(accountKey(assetPrefix, to), balance+amount)
}

// CreditAssets mints base assets to addr. It is only used to seed balances.
func (tx *Tx) CreditAssets(to common.Address, amount uint64) error {
	balance, err := tx.AssetBalance(to)
	if err != nil {
		return err
	}
	if balance+amount < balance {
		return nativevault.ErrOverflow
	}
	return tx.putUint(accountKey(assetPrefix, to), balance+amount)
}

// Bind returns an engine and access registry operating on tx. Events emitted
// by the engine are forwarded to emit.
func (tx *Tx) Bind(emit func(nativevault.Event)) (*nativevault.Engine, *nativevault.AccessRegistry) {
	registry := nativevault.NewAccessRegistry(tx)
	engine := nativevault.NewEngine()
	engine.SetState(tx)
	engine.SetTokens(tx)
	engine.SetPauses(registry)
	engine.SetEmitter(emit)
	return engine, registry
}
