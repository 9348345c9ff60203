package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

func TestInsertRejectsEmptyFingerprint(t *testing.T) {
	// the guard runs before the pool is touched, so no database is needed
	repo := NewRegistryEntryRepository(nil, nil)
	_, err := repo.Insert(context.Background(), entity.RegistryEntry{DoctorName: "Dr. Jane Roe"})
	if !errors.Is(err, ErrEmptyFingerprint) {
		t.Errorf("Insert(empty) err = %v, want ErrEmptyFingerprint", err)
	}
}
