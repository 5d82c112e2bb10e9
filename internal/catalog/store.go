// Package catalog records component/version metadata in a hierarchical
// key-value store with idempotent upserts.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arc-components/arcci/internal/logfields"
)

// defaultMaxRetries bounds the compare-and-swap retry loop. Conflicts only
// happen when two upserts race on the same component, so a small bound is
// plenty.
const defaultMaxRetries = 4

// Store implements the hierarchical idempotent upsert over a KV backend.
type Store struct {
	kv         KV
	maxRetries int
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv, maxRetries: defaultMaxRetries}
}

// UpsertResult describes what an upsert changed.
type UpsertResult struct {
	GroupSlug        string
	ComponentSlug    string
	GroupCreated     bool
	ComponentCreated bool
	VersionCreated   bool
	VersionReplaced  bool
}

// UpsertVersion records a build of (groupName, componentName, version) with
// its docs payload.
//
// Repeating a call with identical arguments leaves the catalog unchanged
// apart from rewriting the same docs blob. A new version string is appended
// to the component's version list before its Version entity is written, so
// a crash in between leaves a recorded version whose entity is recreated on
// the next run (the "known version, missing record" branch).
//
// The component write is revision-guarded: concurrent upserts for the same
// component cannot silently drop an appended version; the loser retries on
// ErrConflict up to maxRetries times.
func (s *Store) UpsertVersion(ctx context.Context, version, componentName, groupName, docs string) (UpsertResult, error) {
	if version == "" || componentName == "" || groupName == "" {
		return UpsertResult{}, fmt.Errorf("catalog: version, component and group are all required")
	}

	res := UpsertResult{
		GroupSlug:     Slugify(groupName),
		ComponentSlug: Slugify(componentName),
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		created, err := s.ensureGroup(ctx, groupName, res.GroupSlug)
		if err != nil {
			return res, err
		}
		res.GroupCreated = res.GroupCreated || created

		newVersion, compCreated, err := s.ensureComponent(ctx, version, componentName, groupName, res)
		if errors.Is(err, ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return res, err
		}
		res.ComponentCreated = res.ComponentCreated || compCreated

		if err := s.writeVersion(ctx, version, componentName, docs, newVersion, &res); err != nil {
			return res, err
		}
		return res, nil
	}
	return res, fmt.Errorf("catalog: upsert of %s/%s@%s gave up after %d conflicts: %w",
		res.GroupSlug, res.ComponentSlug, version, s.maxRetries+1, lastErr)
}

// ensureGroup creates the group entity if it is absent. A concurrent create
// by another upsert is fine; the entity content is identical.
func (s *Store) ensureGroup(ctx context.Context, name, slug string) (bool, error) {
	key := groupKey(slug)
	_, err := s.kv.Get(ctx, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return false, fmt.Errorf("catalog: read group %s: %w", slug, err)
	}

	data, err := json.Marshal(Group{Name: name, Slug: slug})
	if err != nil {
		return false, err
	}
	if _, err := s.kv.Create(ctx, key, data); err != nil {
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("catalog: create group %s: %w", slug, err)
	}
	slog.Info("Created catalog group", logfields.Group(slug))
	return true, nil
}

// ensureComponent records version in the component's version list. It
// returns whether the version is new to the component and whether the
// component entity itself was created. ErrConflict means the conditional
// write lost a race and the caller should retry from a fresh read.
func (s *Store) ensureComponent(ctx context.Context, version, componentName, groupName string, res UpsertResult) (newVersion, created bool, err error) {
	key := componentKey(res.GroupSlug, res.ComponentSlug)

	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		comp := Component{
			Slug:           res.ComponentSlug,
			Name:           componentName,
			Group:          groupName,
			Versions:       []string{version},
			CurrentVersion: version,
		}
		data, merr := json.Marshal(comp)
		if merr != nil {
			return false, false, merr
		}
		if _, cerr := s.kv.Create(ctx, key, data); cerr != nil {
			if errors.Is(cerr, ErrConflict) {
				return false, false, ErrConflict
			}
			return false, false, fmt.Errorf("catalog: create component %s: %w", res.ComponentSlug, cerr)
		}
		slog.Info("Created catalog component",
			logfields.Group(res.GroupSlug), logfields.Component(res.ComponentSlug))
		return true, true, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("catalog: read component %s: %w", res.ComponentSlug, err)
	}

	var comp Component
	if err := json.Unmarshal(entry.Value, &comp); err != nil {
		return false, false, fmt.Errorf("catalog: decode component %s: %w", res.ComponentSlug, err)
	}
	if comp.HasVersion(version) {
		return false, false, nil
	}

	comp.Versions = append(comp.Versions, version)
	comp.CurrentVersion = version
	data, err := json.Marshal(comp)
	if err != nil {
		return false, false, err
	}
	if _, err := s.kv.Update(ctx, key, data, entry.Revision); err != nil {
		if errors.Is(err, ErrConflict) {
			return false, false, ErrConflict
		}
		return false, false, fmt.Errorf("catalog: update component %s: %w", res.ComponentSlug, err)
	}
	return true, false, nil
}

// writeVersion creates or replaces the Version entity. A rebuild of a known
// version replaces its docs blob in place, preserving the other fields of
// the stored record.
func (s *Store) writeVersion(ctx context.Context, version, componentName, docs string, newVersion bool, res *UpsertResult) error {
	key := versionKey(res.GroupSlug, res.ComponentSlug, version)

	ver := Version{Name: componentName, Version: version, Docs: docs}

	if !newVersion {
		entry, err := s.kv.Get(ctx, key)
		switch {
		case err == nil:
			var existing Version
			if derr := json.Unmarshal(entry.Value, &existing); derr == nil {
				existing.Docs = docs
				ver = existing
			}
			res.VersionReplaced = true
		case errors.Is(err, ErrKeyNotFound):
			// Version was in the component list but its record is gone:
			// inconsistent prior state, recreate it fresh.
			slog.Warn("Version listed but record missing, recreating",
				logfields.Component(res.ComponentSlug), logfields.Version(version))
			res.VersionCreated = true
		default:
			return fmt.Errorf("catalog: read version %s: %w", version, err)
		}
	} else {
		res.VersionCreated = true
	}

	data, err := json.Marshal(ver)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("catalog: write version %s: %w", version, err)
	}
	return nil
}
