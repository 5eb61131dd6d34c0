// Package memstore is an in-memory spatial store and run log. It backs dry
// runs (STORE_BACKEND=memory) and the orchestrator tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// ErrNotFound is returned when reading an output that does not exist.
var ErrNotFound = errors.New("output not found")

type kind int

const (
	kindObservations kind = iota + 1
	kindView
	kindPrimary
	kindSecondary
)

type object struct {
	kind         kind
	observations []domain.PointObservation
	sources      []string // kindView
	primary      []domain.PrimaryCluster
	secondary    []domain.SecondaryCluster
}

// Store is a mutex-guarded in-memory implementation of the pipeline store and run log.
type Store struct {
	mu       sync.Mutex
	objects  map[string]*object
	aliases  map[string]string
	entities []domain.SecondaryEntity
	log      []domain.RunLogEntry

	writes     int
	failWrites map[string]error
	dropWrites map[string]bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		objects:    make(map[string]*object),
		aliases:    make(map[string]string),
		failWrites: make(map[string]error),
		dropWrites: make(map[string]bool),
	}
}

// SeedEntities adds secondary entities available to QueryEntities.
func (s *Store) SeedEntities(entities ...domain.SecondaryEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, entities...)
}

// FailWrite makes every write to name fail with err. A nil err clears it.
func (s *Store) FailWrite(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failWrites, name)
		return
	}
	s.failWrites[name] = err
}

// DropWrite makes writes to name report success without persisting anything.
func (s *Store) DropWrite(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropWrites[name] = true
}

// Writes counts successful mutations: table writes, views and aliases.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Names lists every existing output and alias, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.objects)+len(s.aliases))
	for n := range s.objects {
		names = append(names, n)
	}
	for n := range s.aliases {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ViewSources returns the tables a union view reads from.
func (s *Store) ViewSources(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[name]; ok && o.kind == kindView {
		return slices.Clone(o.sources)
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Exists reports whether a table, view or alias called name exists.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; ok {
		return true, nil
	}
	_, ok := s.aliases[name]
	return ok, nil
}

// beginWrite applies failure injection. It returns false when the write
// should be silently dropped.
func (s *Store) beginWrite(name string) (bool, error) {
	if err, ok := s.failWrites[name]; ok {
		return false, fmt.Errorf("write %s: %w", name, err)
	}
	if s.dropWrites[name] {
		return false, nil
	}
	return true, nil
}

// WriteObservations stores points under name using mode.
func (s *Store) WriteObservations(_ context.Context, name string, points []domain.PointObservation, mode domain.WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.beginWrite(name)
	if !ok {
		return err
	}
	o := s.prepare(name, kindObservations, mode)
	o.observations = append(o.observations, points...)
	s.writes++
	return nil
}

// WritePrimaryClusters stores clusters under name using mode.
func (s *Store) WritePrimaryClusters(_ context.Context, name string, clusters []domain.PrimaryCluster, mode domain.WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.beginWrite(name)
	if !ok {
		return err
	}
	o := s.prepare(name, kindPrimary, mode)
	o.primary = append(o.primary, clusters...)
	s.writes++
	return nil
}

// WriteSecondaryClusters stores clusters under name using mode.
func (s *Store) WriteSecondaryClusters(_ context.Context, name string, clusters []domain.SecondaryCluster, mode domain.WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.beginWrite(name)
	if !ok {
		return err
	}
	o := s.prepare(name, kindSecondary, mode)
	o.secondary = append(o.secondary, clusters...)
	s.writes++
	return nil
}

// prepare returns the object to write into: the existing one for append,
// a fresh one otherwise.
func (s *Store) prepare(name string, k kind, mode domain.WriteMode) *object {
	if o, ok := s.objects[name]; ok && mode == domain.WriteAppend && o.kind == k {
		return o
	}
	o := &object{kind: k}
	s.objects[name] = o
	return o
}

// CreateUnionView replaces the view name with the union of sources.
func (s *Store) CreateUnionView(_ context.Context, name string, sources []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sources) == 0 {
		return fmt.Errorf("create view %s: no sources", name)
	}
	for _, src := range sources {
		if o, ok := s.objects[src]; !ok || o.kind != kindObservations {
			return fmt.Errorf("create view %s: source %s: %w", name, src, ErrNotFound)
		}
	}
	ok, err := s.beginWrite(name)
	if !ok {
		return err
	}
	s.objects[name] = &object{kind: kindView, sources: slices.Clone(sources)}
	s.writes++
	return nil
}

// LoadObservations reads a table or view of observations.
func (s *Store) LoadObservations(_ context.Context, source string) ([]domain.PointObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[source]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", source, ErrNotFound)
	}
	switch o.kind {
	case kindObservations:
		return slices.Clone(o.observations), nil
	case kindView:
		var out []domain.PointObservation
		for _, src := range o.sources {
			if so, ok := s.objects[src]; ok {
				out = append(out, so.observations...)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("load %s: not an observation table", source)
	}
}

// LoadPrimaryClusters reads a primary cluster table or an alias of one.
func (s *Store) LoadPrimaryClusters(_ context.Context, name string) ([]domain.PrimaryCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target, ok := s.aliases[name]; ok {
		name = target
	}
	o, ok := s.objects[name]
	if !ok || o.kind != kindPrimary {
		return nil, fmt.Errorf("load %s: %w", name, ErrNotFound)
	}
	return slices.Clone(o.primary), nil
}

// LoadSecondaryClusters reads a secondary cluster table.
func (s *Store) LoadSecondaryClusters(_ context.Context, name string) ([]domain.SecondaryCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok || o.kind != kindSecondary {
		return nil, fmt.Errorf("load %s: %w", name, ErrNotFound)
	}
	return slices.Clone(o.secondary), nil
}

// CreateAlias points alias at target.
func (s *Store) CreateAlias(_ context.Context, alias, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[target]; !ok {
		return fmt.Errorf("alias %s -> %s: %w", alias, target, ErrNotFound)
	}
	ok, err := s.beginWrite(alias)
	if !ok {
		return err
	}
	s.aliases[alias] = target
	s.writes++
	return nil
}

// ResolveAlias returns the alias target, or "" when the alias does not exist.
func (s *Store) ResolveAlias(_ context.Context, alias string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliases[alias], nil
}

// QueryEntities returns seeded entities inside region.
func (s *Store) QueryEntities(_ context.Context, region orb.Polygon) ([]domain.SecondaryEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SecondaryEntity
	for _, e := range s.entities {
		if planar.PolygonContains(region, e.Location) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Append records a run log entry.
func (s *Store) Append(_ context.Context, entry domain.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

// History returns the newest entries for partition, newest first. A limit of
// 0 or less returns all of them. An empty partition matches every entry.
func (s *Store) History(_ context.Context, partition string, limit int) ([]domain.RunLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RunLogEntry
	for i := len(s.log) - 1; i >= 0; i-- {
		if partition != "" && s.log[i].Partition != partition {
			continue
		}
		out = append(out, s.log[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Entries returns the full run log in append order.
func (s *Store) Entries() []domain.RunLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}
