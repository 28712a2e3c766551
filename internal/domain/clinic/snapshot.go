package clinic

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chat-incom/agendamento/internal/platform/availability"
)

//go:embed snapshot.json
var defaultSnapshot []byte

// Snapshot is the reference data served when the store cannot be reached and
// used to seed a fresh store.
type Snapshot struct {
	Specialties []*Specialty `json:"specialties"`
	Insurances  []*Insurance `json:"insurances"`
	Doctors     []*Doctor    `json:"doctors"`
}

// DefaultSnapshot returns the embedded demo clinic.
func DefaultSnapshot() (*Snapshot, error) {
	return ReadSnapshot(bytes.NewReader(defaultSnapshot))
}

// LoadSnapshot reads a snapshot from path, or the embedded one when path is empty.
func LoadSnapshot(path string) (*Snapshot, error) {
	if path == "" {
		return DefaultSnapshot()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ReadSnapshot decodes and validates a snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks working hours and references between snapshot records.
func (s *Snapshot) Validate() error {
	specialties := make(map[string]bool)
	for _, sp := range s.Specialties {
		specialties[sp.ID.String()] = true
	}
	insurances := make(map[string]bool)
	for _, in := range s.Insurances {
		insurances[in.ID.String()] = true
	}
	for _, d := range s.Doctors {
		if !specialties[d.SpecialtyID.String()] {
			return fmt.Errorf("snapshot doctor %s: unknown specialty %s", d.Name, d.SpecialtyID)
		}
		for _, id := range d.InsuranceIDs {
			if !insurances[id.String()] {
				return fmt.Errorf("snapshot doctor %s: unknown insurance %s", d.Name, id)
			}
		}
		if err := availability.ValidateTemplate(d.WorkingHours); err != nil {
			return fmt.Errorf("snapshot doctor %s: %w", d.Name, err)
		}
	}
	return nil
}

// Repository loads the snapshot into a fresh in-memory repository.
func (s *Snapshot) Repository() *MemoryRepository {
	repo := NewMemoryRepository()
	if _, err := Seed(context.Background(), repo, s); err != nil {
		// Validate has already checked every reference.
		panic(fmt.Sprintf("load snapshot: %v", err))
	}
	return repo
}

// SeedResult counts the records Seed created.
type SeedResult struct {
	Specialties int `json:"specialties"`
	Insurances  int `json:"insurances"`
	Doctors     int `json:"doctors"`
}

// Seed writes snapshot records that do not exist yet into repo, keeping their
// ids. It is safe to run repeatedly.
func Seed(ctx context.Context, repo Repository, s *Snapshot) (SeedResult, error) {
	var res SeedResult
	for _, sp := range s.Specialties {
		c := *sp
		created, err := seedOne(func() error { _, err := repo.GetSpecialty(ctx, c.ID); return err },
			func() error { return repo.CreateSpecialty(ctx, &c) })
		if err != nil {
			return res, fmt.Errorf("seed specialty %s: %w", c.Name, err)
		}
		if created {
			res.Specialties++
		}
	}
	for _, in := range s.Insurances {
		c := *in
		created, err := seedOne(func() error { _, err := repo.GetInsurance(ctx, c.ID); return err },
			func() error { return repo.CreateInsurance(ctx, &c) })
		if err != nil {
			return res, fmt.Errorf("seed insurance %s: %w", c.Name, err)
		}
		if created {
			res.Insurances++
		}
	}
	for _, d := range s.Doctors {
		c := cloneDoctor(d)
		created, err := seedOne(func() error { _, err := repo.GetDoctor(ctx, c.ID); return err },
			func() error { return repo.CreateDoctor(ctx, c) })
		if err != nil {
			return res, fmt.Errorf("seed doctor %s: %w", c.Name, err)
		}
		if created {
			res.Doctors++
		}
	}
	return res, nil
}

func seedOne(get, create func() error) (bool, error) {
	err := get()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err := create(); err != nil {
		return false, err
	}
	return true, nil
}
