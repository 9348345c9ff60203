package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

var (
	fpA = strings.Repeat("a", 64)
	fpB = strings.Repeat("b", 64)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		t.Fatalf("open mem leveldb: %v", err)
	}
	l, err := NewLedger(db, quietLogger())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "registry.db"), quietLogger())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(fp, doctor string) entity.RegistryEntry {
	return entity.RegistryEntry{
		Fingerprint:      fp,
		DoctorName:       doctor,
		PatientName:      "Jane Roe",
		PrescriptionDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestStores(t *testing.T) {
	stores := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemory() }},
		{"leveldb", func(t *testing.T) Store { return newTestLedger(t) }},
		{"sqlite", func(t *testing.T) Store { return newTestSQLite(t) }},
	}

	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)

			ok, err := s.ExistsAndValid(ctx, fpA)
			if err != nil || ok {
				t.Fatalf("empty store: ok=%v err=%v", ok, err)
			}

			got, err := s.Insert(ctx, entry(fpA, "Smith"))
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if got != fpA {
				t.Errorf("Insert returned %q, want %q", got, fpA)
			}
			if ok, _ := s.ExistsAndValid(ctx, fpA); !ok {
				t.Errorf("ExistsAndValid(%s) = false after insert", fpA[:8])
			}
			if ok, _ := s.ExistsAndValid(ctx, fpB); ok {
				t.Errorf("ExistsAndValid(%s) = true, never inserted", fpB[:8])
			}
			if ok, _ := s.ExistsAndValid(ctx, strings.ToUpper(fpA)); ok {
				t.Error("lookup must be exact, matched upper-case fingerprint")
			}

			// duplicates are accepted
			if _, err := s.Insert(ctx, entry(fpA, "Smith")); err != nil {
				t.Fatalf("duplicate Insert: %v", err)
			}
			if _, err := s.Insert(ctx, entry(fpB, "Jones")); err != nil {
				t.Fatalf("Insert B: %v", err)
			}

			entries, err := s.Entries(ctx)
			if err != nil {
				t.Fatalf("Entries: %v", err)
			}
			if len(entries) != 3 {
				t.Fatalf("len(Entries) = %d, want 3", len(entries))
			}
			if entries[2].DoctorName != "Jones" {
				t.Errorf("entries not in insertion order: last doctor %q", entries[2].DoctorName)
			}
			for i, e := range entries {
				if !e.Valid {
					t.Errorf("entry %d not marked valid", i)
				}
				if e.RegisteredAt.IsZero() {
					t.Errorf("entry %d has no RegisteredAt", i)
				}
				if !e.PrescriptionDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("entry %d date = %v", i, e.PrescriptionDate)
				}
			}

			if _, err := s.Insert(ctx, entity.RegistryEntry{}); !errors.Is(err, ErrEmptyFingerprint) {
				t.Errorf("Insert(empty) err = %v, want ErrEmptyFingerprint", err)
			}
		})
	}
}

func TestLedgerVerifyChain(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	h, err := l.VerifyChain(ctx)
	if err != nil || h != 0 {
		t.Fatalf("fresh chain: height=%d err=%v", h, err)
	}

	for _, fp := range []string{fpA, fpB} {
		if _, err := l.Insert(ctx, entry(fp, "Smith")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	h, err = l.VerifyChain(ctx)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if h != 2 {
		t.Errorf("height = %d, want 2", h)
	}

	blocks, err := l.Blocks()
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	if blocks[0].PrevHash != strings.Repeat("0", 64) {
		t.Errorf("genesis prev hash = %q", blocks[0].PrevHash)
	}
	if blocks[2].PrevHash != blocks[1].Hash {
		t.Error("block 2 not linked to block 1")
	}

	// tamper with block 1's patient name
	tampered := blocks[1]
	tampered.Entry.PatientName = "Mallory"
	data, _ := json.Marshal(tampered)
	if err := l.db.Put([]byte("block_1"), data, nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err = l.VerifyChain(ctx)
	var ce *ChainError
	if !errors.As(err, &ce) {
		t.Fatalf("VerifyChain after tamper err = %v, want *ChainError", err)
	}
	if ce.Index != 1 {
		t.Errorf("ChainError.Index = %d, want 1", ce.Index)
	}
}

func TestLedgerReopenKeepsChain(t *testing.T) {
	ctx := context.Background()
	stor := storage.NewMemStorage()

	db, err := leveldb.Open(stor, nil)
	if err != nil {
		t.Fatal(err)
	}
	l, err := NewLedger(db, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Insert(ctx, entry(fpA, "Smith")); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = leveldb.Open(stor, nil)
	if err != nil {
		t.Fatal(err)
	}
	l, err = NewLedger(db, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if ok, _ := l.ExistsAndValid(ctx, fpA); !ok {
		t.Error("fingerprint lost across reopen")
	}
	if h, err := l.VerifyChain(ctx); err != nil || h != 1 {
		t.Errorf("VerifyChain after reopen: height=%d err=%v", h, err)
	}
}

func TestRedisKeys(t *testing.T) {
	r := NewRedis(nil, "rx:", quietLogger())
	if got := r.validKey(); got != "rx:valid" {
		t.Errorf("validKey = %q", got)
	}
	if got := r.entriesKey(); got != "rx:entries" {
		t.Errorf("entriesKey = %q", got)
	}
}
