package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

// Key layout:
//
//	block_<index>  -> Block JSON
//	fp_<hex>       -> index of the latest block holding that fingerprint
//	height_latest  -> index of the chain tip
const (
	keyHeight   = "height_latest"
	blockPrefix = "block_"
	fpPrefix    = "fp_"
)

var genesisPrevHash = strings.Repeat("0", 64)

// Block is one ledger record. Hash covers every other field, and PrevHash
// links it to the block before, so any rewrite of history is detectable.
type Block struct {
	Index     int                  `json:"index"`
	Timestamp time.Time            `json:"timestamp"`
	PrevHash  string               `json:"prev_hash"`
	Entry     entity.RegistryEntry `json:"entry"`
	Hash      string               `json:"hash"`
}

// ChainError reports the first block failing VerifyChain.
type ChainError struct {
	Index  int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger block %d: %s", e.Index, e.Reason)
}

// Ledger is a single-writer, hash-chained registry stored in LevelDB.
type Ledger struct {
	db     *leveldb.DB
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex // serializes appends
}

// OpenLedger opens (or creates) a LevelDB ledger at path.
func OpenLedger(path string, logger *slog.Logger) (*Ledger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	l, err := NewLedger(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// NewLedger wraps an open LevelDB handle, writing the genesis block when the
// database is empty.
func NewLedger(db *leveldb.DB, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{db: db, logger: logger, now: time.Now}
	if _, err := l.height(); errors.Is(err, leveldb.ErrNotFound) {
		genesis := Block{Index: 0, Timestamp: time.Unix(0, 0).UTC(), PrevHash: genesisPrevHash}
		genesis.Hash = blockHash(genesis)
		batch := new(leveldb.Batch)
		if err := putBlock(batch, genesis); err != nil {
			return nil, err
		}
		batch.Put([]byte(keyHeight), []byte("0"))
		if err := db.Write(batch, nil); err != nil {
			return nil, fmt.Errorf("write genesis block: %w", err)
		}
		logger.Info("ledger initialized", "genesis_hash", genesis.Hash)
	} else if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) ExistsAndValid(_ context.Context, fingerprint string) (bool, error) {
	raw, err := l.db.Get([]byte(fpPrefix+fingerprint), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	idx, err := strconv.Atoi(string(raw))
	if err != nil {
		return false, fmt.Errorf("ledger index for %s: %w", fingerprint, err)
	}
	b, err := l.Block(idx)
	if err != nil {
		return false, err
	}
	return b.Entry.Fingerprint == fingerprint && b.Entry.Valid, nil
}

func (l *Ledger) Insert(_ context.Context, entry entity.RegistryEntry) (string, error) {
	if entry.Fingerprint == "" {
		return "", ErrEmptyFingerprint
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.height()
	if err != nil {
		return "", err
	}
	tip, err := l.Block(h)
	if err != nil {
		return "", err
	}
	now := l.now()
	b := Block{
		Index:     h + 1,
		Timestamp: now.UTC(),
		PrevHash:  tip.Hash,
		Entry:     entry.Stamped(now),
	}
	b.Hash = blockHash(b)

	batch := new(leveldb.Batch)
	if err := putBlock(batch, b); err != nil {
		return "", err
	}
	batch.Put([]byte(fpPrefix+entry.Fingerprint), []byte(strconv.Itoa(b.Index)))
	batch.Put([]byte(keyHeight), []byte(strconv.Itoa(b.Index)))
	if err := l.db.Write(batch, nil); err != nil {
		return "", fmt.Errorf("ledger append: %w", err)
	}
	l.logger.Debug("ledger block appended", "index", b.Index, "hash", b.Hash, "fingerprint", entry.Fingerprint)
	return entry.Fingerprint, nil
}

// Entries returns every registered entry, genesis excluded.
func (l *Ledger) Entries(_ context.Context) ([]entity.RegistryEntry, error) {
	blocks, err := l.Blocks()
	if err != nil {
		return nil, err
	}
	out := make([]entity.RegistryEntry, 0, len(blocks))
	for _, b := range blocks[1:] {
		out = append(out, b.Entry)
	}
	return out, nil
}

// Blocks returns the whole chain starting at genesis.
func (l *Ledger) Blocks() ([]Block, error) {
	h, err := l.height()
	if err != nil {
		return nil, err
	}
	blocks := make([]Block, 0, h+1)
	for i := 0; i <= h; i++ {
		b, err := l.Block(i)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (l *Ledger) Block(index int) (Block, error) {
	raw, err := l.db.Get([]byte(blockPrefix+strconv.Itoa(index)), nil)
	if err != nil {
		return Block{}, fmt.Errorf("ledger block %d: %w", index, err)
	}
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return Block{}, fmt.Errorf("decode ledger block %d: %w", index, err)
	}
	return b, nil
}

// VerifyChain recomputes every block hash and checks the prev-hash links.
// It returns the chain height on success and a *ChainError otherwise.
func (l *Ledger) VerifyChain(ctx context.Context) (int, error) {
	blocks, err := l.Blocks()
	if err != nil {
		return 0, err
	}
	prev := genesisPrevHash
	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if b.Index != i {
			return 0, &ChainError{Index: i, Reason: fmt.Sprintf("stored index %d", b.Index)}
		}
		if b.PrevHash != prev {
			return 0, &ChainError{Index: i, Reason: "previous hash mismatch"}
		}
		if blockHash(b) != b.Hash {
			return 0, &ChainError{Index: i, Reason: "hash mismatch"}
		}
		prev = b.Hash
	}
	return len(blocks) - 1, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) height() (int, error) {
	raw, err := l.db.Get([]byte(keyHeight), nil)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}

func putBlock(batch *leveldb.Batch, b Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode ledger block %d: %w", b.Index, err)
	}
	batch.Put([]byte(blockPrefix+strconv.Itoa(b.Index)), data)
	return nil
}

// blockHash is sha256 over the JSON of the block with Hash cleared.
func blockHash(b Block) string {
	b.Hash = ""
	data, _ := json.Marshal(b)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
