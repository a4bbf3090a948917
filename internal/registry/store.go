package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/redis/go-redis/v9"
)

var createTableOptions = orm.CreateTableOptions{IfNotExists: true}

const cacheTTL = 5 * time.Minute

// Store is the Postgres-backed CRUD registry with a Redis read-through
// cache, grounded directly on the teacher's session/repo.Repository:
// GetByID checks Redis first, falls back to the DB, repopulates the
// cache; every mutation invalidates the cache entries it could have
// staled. This is the external "function registry store" spec.md §1
// deliberately keeps out of the invocation core's scope — but the core
// still needs a concrete implementation to run against.
type Store struct {
	db    *pg.DB
	cache redis.Cmdable
}

func NewStore(db *pg.DB, cache redis.Cmdable) *Store {
	return &Store{db: db, cache: cache}
}

func (s *Store) EnsureSchema() error {
	return s.db.Model(&FunctionModel{}).CreateTable(&createTableOptions)
}

func (s *Store) Create(ctx context.Context, f *Function) (*Function, error) {
	m := toModel(f)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if _, err := s.db.Model(m).Insert(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return fromModel(m), nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Function, error) {
	if s.cache != nil {
		if f, ok := s.readCache(ctx, idCacheKey(id)); ok {
			return f, nil
		}
	}

	m := &FunctionModel{ID: id}
	if err := s.db.Model(m).WherePK().Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	f := fromModel(m)
	s.writeCache(ctx, f)
	return f, nil
}

func (s *Store) GetByRoute(ctx context.Context, route string) (*Function, error) {
	if s.cache != nil {
		if f, ok := s.readCache(ctx, routeCacheKey(route)); ok {
			return f, nil
		}
	}

	var m FunctionModel
	if err := s.db.Model(&m).Where("route = ?", route).Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	f := fromModel(&m)
	s.writeCache(ctx, f)
	return f, nil
}

func (s *Store) List(ctx context.Context) ([]*Function, error) {
	var models []FunctionModel
	if err := s.db.Model(&models).Order("created_at DESC").Select(); err != nil {
		return nil, err
	}
	out := make([]*Function, 0, len(models))
	for i := range models {
		out = append(out, fromModel(&models[i]))
	}
	return out, nil
}

// Update overwrites name/route/language/timeout/image/code for id,
// invalidating both the old and new route cache entries (the route may be
// changing).
func (s *Store) Update(ctx context.Context, f *Function) (*Function, error) {
	existing, err := s.GetByID(ctx, f.ID)
	if err != nil {
		return nil, err
	}

	m := toModel(f)
	m.CreatedAt = existing.CreatedAt
	if _, err := s.db.Model(m).WherePK().Update(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.invalidate(ctx, existing.ID, existing.Route)
	if f.Route != existing.Route {
		s.invalidate(ctx, existing.ID, f.Route)
	}
	return fromModel(m), nil
}

func (s *Store) Delete(ctx context.Context, id int64) (*Function, error) {
	f, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.Model(&FunctionModel{ID: id}).WherePK().Delete(); err != nil {
		return nil, err
	}

	s.invalidate(ctx, f.ID, f.Route)
	return f, nil
}

func (s *Store) readCache(ctx context.Context, key string) (*Function, bool) {
	val, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var f Function
	if err := json.Unmarshal([]byte(val), &f); err != nil {
		return nil, false
	}
	return &f, true
}

func (s *Store) writeCache(ctx context.Context, f *Function) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, idCacheKey(f.ID), b, cacheTTL).Err()
	_ = s.cache.Set(ctx, routeCacheKey(f.Route), b, cacheTTL).Err()
}

func (s *Store) invalidate(ctx context.Context, id int64, route string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, idCacheKey(id), routeCacheKey(route)).Err()
}

func idCacheKey(id int64) string    { return "function:id:" + strconv.FormatInt(id, 10) }
func routeCacheKey(r string) string { return "function:route:" + r }

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
