package recognition

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"faceattend/internal/apperrors"
)

// Lister lists blob keys under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// KeyCache caches the reference keys of a class. Every Invalidate bumps the
// class generation; SetIfGeneration stores keys only while the generation
// still equals the one read before listing, so a listing that raced an
// enrollment is never cached.
type KeyCache interface {
	Get(ctx context.Context, class string) ([]string, bool, error)
	Generation(ctx context.Context, class string) (int64, error)
	SetIfGeneration(ctx context.Context, class string, gen int64, keys []string) (bool, error)
	Invalidate(ctx context.Context, class string) error
}

// RosterLoader builds class rosters from the blob store, optionally through a cache.
type RosterLoader struct {
	blobs  Lister
	cache  KeyCache
	logger *zap.Logger
}

// NewRosterLoader creates a loader. cache may be nil.
func NewRosterLoader(blobs Lister, cache KeyCache, logger *zap.Logger) *RosterLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterLoader{blobs: blobs, cache: cache, logger: logger}
}

// Load returns every image reference enrolled in class, sorted for resolution.
func (l *RosterLoader) Load(ctx context.Context, class string) ([]Reference, error) {
	keys, err := l.keys(ctx, class)
	if err != nil {
		return nil, err
	}

	roster := make([]Reference, 0, len(keys))
	for _, key := range keys {
		if !IsImageKey(key) {
			continue
		}
		id, err := ParseKey(key)
		if err != nil || id.Class != class {
			continue
		}
		roster = append(roster, Reference{Identity: id, Key: key})
	}
	return SortRoster(roster), nil
}

// Invalidate drops the cached roster of class after an enrollment.
func (l *RosterLoader) Invalidate(ctx context.Context, class string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, class); err != nil {
		l.logger.Warn("roster cache invalidation failed", zap.String("class", class), zap.Error(err))
	}
}

// Classes returns the sorted distinct class names that have at least one object.
func (l *RosterLoader) Classes(ctx context.Context) ([]string, error) {
	keys, err := l.blobs.List(ctx, RootPrefix)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "list classes failed")
	}
	seen := make(map[string]struct{})
	for _, key := range keys {
		id, err := ParseKey(key)
		if err != nil {
			continue
		}
		seen[id.Class] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes, nil
}

func (l *RosterLoader) keys(ctx context.Context, class string) ([]string, error) {
	cacheable := false
	var gen int64
	if l.cache != nil {
		keys, ok, err := l.cache.Get(ctx, class)
		if err != nil {
			l.logger.Warn("roster cache read failed", zap.String("class", class), zap.Error(err))
		} else if ok {
			return keys, nil
		}
		if gen, err = l.cache.Generation(ctx, class); err != nil {
			l.logger.Warn("roster cache generation read failed", zap.String("class", class), zap.Error(err))
		} else {
			cacheable = true
		}
	}

	keys, err := l.blobs.List(ctx, ClassPrefix(class))
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "list roster failed")
	}

	if cacheable {
		stored, err := l.cache.SetIfGeneration(ctx, class, gen, keys)
		switch {
		case err != nil:
			l.logger.Warn("roster cache write failed", zap.String("class", class), zap.Error(err))
		case !stored:
			l.logger.Debug("roster changed while listing; not cached", zap.String("class", class))
		}
	}
	return keys, nil
}
