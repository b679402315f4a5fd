package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	rediscfg "github.com/ethpandaops/viewgraph/pkg/redis"
	"github.com/redis/go-redis/v9"
)

const (
	setTags      = "tags"
	setTables    = "base_tables"
	setDependsOn = "depends_on"
	setUsedBy    = "used_by"
)

// RedisStore keeps each view as a hash of scalar fields plus one set per
// collection field, with secondary index sets for filtering.
type RedisStore struct {
	client *redis.Client
	cfg    *rediscfg.Config
}

// NewRedisStore creates a store on client using the key prefix from cfg
func NewRedisStore(client *redis.Client, cfg *rediscfg.Config) *RedisStore {
	return &RedisStore{client: client, cfg: cfg}
}

func (s *RedisStore) viewKey(name string) string {
	return s.cfg.PrefixKey("view:" + name)
}

func (s *RedisStore) setKey(name, kind string) string {
	return s.cfg.PrefixKey("view:" + name + ":" + kind)
}

func (s *RedisStore) allKey() string {
	return s.cfg.PrefixKey("views")
}

func (s *RedisStore) idsKey() string {
	return s.cfg.PrefixKey("view_ids")
}

func (s *RedisStore) revKey(name string) string {
	return s.cfg.PrefixKey("view:" + name + ":rev")
}

func (s *RedisStore) lineageKey() string {
	return s.cfg.PrefixKey("lineage_rev")
}

func (s *RedisStore) seqKey() string {
	return s.cfg.PrefixKey("view_seq")
}

func (s *RedisStore) domainKey(d Domain) string {
	return s.cfg.PrefixKey("idx:domain:" + string(d))
}

func (s *RedisStore) layerKey(l Layer) string {
	return s.cfg.PrefixKey("idx:layer:" + strconv.Itoa(int(l)))
}

func (s *RedisStore) statusKey(st Status) string {
	return s.cfg.PrefixKey("idx:status:" + string(st))
}

func (s *RedisStore) tableKey(table string) string {
	return s.cfg.PrefixKey("idx:table:" + table)
}

// Insert writes a new record inside a WATCH/MULTI transaction on the view key
func (s *RedisStore) Insert(ctx context.Context, v *View) error {
	key := s.viewKey(v.Name)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		if exists > 0 {
			return ErrDuplicateView
		}

		id, err := tx.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}

		v.ID = id

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeView(v))
			s.writeSets(ctx, pipe, v, true)
			s.addIndexes(ctx, pipe, v)
			pipe.SAdd(ctx, s.statusKey(v.Status), v.Name)
			pipe.HSet(ctx, s.idsKey(), strconv.FormatInt(id, 10), v.Name)

			for _, dep := range v.DependsOnViews {
				pipe.SAdd(ctx, s.setKey(dep, setUsedBy), v.Name)
			}

			if len(v.DependsOnViews) > 0 {
				pipe.Incr(ctx, s.lineageKey())
			}

			return nil
		})

		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateView), errors.Is(err, redis.TxFailedErr):
		// A failed WATCH means another writer created the key first
		return fmt.Errorf("%w: %s", ErrDuplicateView, v.Name)
	default:
		return fmt.Errorf("%w: insert %s: %w", ErrStorage, v.Name, err)
	}
}

// Get loads one record by name
func (s *RedisStore) Get(ctx context.Context, name string) (*View, error) {
	views, err := s.load(ctx, []string{name})
	if err != nil {
		return nil, err
	}

	if len(views) == 0 {
		return nil, nil //nolint:nilnil // a miss is not an error
	}

	return views[0], nil
}

// GetByID resolves id through the id index and loads the record
func (s *RedisStore) GetByID(ctx context.Context, id int64) (*View, error) {
	name, err := s.client.HGet(ctx, s.idsKey(), strconv.FormatInt(id, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // a miss is not an error
	}

	if err != nil {
		return nil, fmt.Errorf("%w: resolve id %d: %w", ErrStorage, id, err)
	}

	return s.Get(ctx, name)
}

// List returns the records matching filter ordered by SortByUsage
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*View, error) {
	keys := []string{s.allKey()}
	if filter.Domain != "" {
		keys = append(keys, s.domainKey(filter.Domain))
	}

	if filter.Layer != 0 {
		keys = append(keys, s.layerKey(filter.Layer))
	}

	if filter.Status != "" {
		keys = append(keys, s.statusKey(filter.Status))
	}

	names, err := s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list views: %w", ErrStorage, err)
	}

	if len(filter.Tables) > 0 {
		tableKeys := make([]string, 0, len(filter.Tables))
		for _, t := range filter.Tables {
			tableKeys = append(tableKeys, s.tableKey(t))
		}

		matched, err := s.client.SUnion(ctx, tableKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: list views by table: %w", ErrStorage, err)
		}

		names = intersect(names, matched)
	}

	views, err := s.load(ctx, names)
	if err != nil {
		return nil, err
	}

	SortByUsage(views)

	return views, nil
}

// maxEditAttempts bounds the optimistic retries of Modify
const maxEditAttempts = 16

// Modify re-reads name and writes edit's result inside one optimistic
// transaction. It WATCHes the view's revision key rather than its hash, so
// usage increments and status transitions never abort an edit. Dependency
// edits also WATCH the catalog-wide lineage revision, which every dependency
// change bumps, so lineage checks made inside edit see a stable graph.
func (s *RedisStore) Modify(ctx context.Context, name string, lineage bool, edit EditFunc) error {
	watched := []string{s.revKey(name)}
	if lineage {
		watched = append(watched, s.lineageKey())
	}

	txf := func(tx *redis.Tx) error {
		prev, err := s.Get(ctx, name)
		if err != nil {
			return err
		}

		if prev == nil {
			return ErrViewNotFound
		}

		next, err := edit(prev)
		if err != nil {
			return err
		}

		if next == nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.replace(ctx, pipe, prev, next)
			pipe.Incr(ctx, s.revKey(name))

			if lineage {
				pipe.Incr(ctx, s.lineageKey())
			}

			return nil
		})

		return err
	}

	for attempt := 0; attempt < maxEditAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, watched...)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrViewNotFound):
			return fmt.Errorf("%w: %s", ErrViewNotFound, name)
		case errors.Is(err, ErrStorage), isEditError(err):
			return err
		default:
			return fmt.Errorf("%w: update %s: %w", ErrStorage, name, err)
		}
	}

	return fmt.Errorf("%w: %s", ErrEditConflict, name)
}

// replace queues the writes turning prev into next
func (s *RedisStore) replace(ctx context.Context, pipe redis.Pipeliner, prev, next *View) {
	name := prev.Name

	pipe.HSet(ctx, s.viewKey(name), encodeEditable(next))
	pipe.Del(ctx, s.setKey(name, setTags), s.setKey(name, setTables), s.setKey(name, setDependsOn))
	s.writeSets(ctx, pipe, next, false)

	pipe.SRem(ctx, s.domainKey(prev.Domain), name)
	pipe.SRem(ctx, s.layerKey(prev.Layer), name)

	for _, t := range prev.BaseTables {
		pipe.SRem(ctx, s.tableKey(t), name)
	}

	s.addIndexes(ctx, pipe, next)

	for _, dep := range prev.DependsOnViews {
		pipe.SRem(ctx, s.setKey(dep, setUsedBy), name)
	}

	for _, dep := range next.DependsOnViews {
		pipe.SAdd(ctx, s.setKey(dep, setUsedBy), name)
	}
}

// isEditError reports whether err came from the caller's edit function
func isEditError(err error) bool {
	for _, target := range []error{ErrInvalidView, ErrUnknownDependency, ErrUnknownTable, ErrDependencyCycle} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IncrementUsage runs the usage/promotion script
func (s *RedisStore) IncrementUsage(ctx context.Context, name string, at time.Time, threshold int64) (int64, bool, error) {
	keys := []string{s.viewKey(name), s.statusKey(StatusDraft), s.statusKey(StatusPromoted)}

	res, err := incrementUsageScript.Run(ctx, s.client, keys, formatTime(at), threshold, name).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("%w: increment usage of %s: %w", ErrStorage, name, err)
	}

	if len(res) != 2 || res[0] < 0 {
		return 0, false, fmt.Errorf("%w: %s", ErrViewNotFound, name)
	}

	return res[0], res[1] == 1, nil
}

// Transition runs the status compare-and-set script
func (s *RedisStore) Transition(ctx context.Context, name string, from, to Status, at time.Time) (bool, error) {
	field := ""

	switch to {
	case StatusPromoted:
		field = "promoted_at"
	case StatusMaterialized:
		field = "materialized_at"
	}

	keys := []string{s.viewKey(name)}
	args := []interface{}{string(to), string(from), field, formatTime(at), name}

	for _, st := range Statuses {
		keys = append(keys, s.statusKey(st))
		args = append(args, string(st))
	}

	res, err := transitionScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: transition %s to %s: %w", ErrStorage, name, to, err)
	}

	if res < 0 {
		return false, fmt.Errorf("%w: %s", ErrViewNotFound, name)
	}

	return res == 1, nil
}

func (s *RedisStore) writeSets(ctx context.Context, pipe redis.Pipeliner, v *View, withUsedBy bool) {
	sets := map[string][]string{
		setTags:      v.Tags,
		setTables:    v.BaseTables,
		setDependsOn: v.DependsOnViews,
	}

	if withUsedBy {
		sets[setUsedBy] = v.UsedByViews
	}

	for kind, members := range sets {
		if len(members) > 0 {
			pipe.SAdd(ctx, s.setKey(v.Name, kind), toArgs(members)...)
		}
	}
}

func (s *RedisStore) addIndexes(ctx context.Context, pipe redis.Pipeliner, v *View) {
	pipe.SAdd(ctx, s.allKey(), v.Name)
	pipe.SAdd(ctx, s.domainKey(v.Domain), v.Name)
	pipe.SAdd(ctx, s.layerKey(v.Layer), v.Name)

	for _, t := range v.BaseTables {
		pipe.SAdd(ctx, s.tableKey(t), v.Name)
	}
}

type viewCmds struct {
	hash      *redis.MapStringStringCmd
	tags      *redis.StringSliceCmd
	tables    *redis.StringSliceCmd
	dependsOn *redis.StringSliceCmd
	usedBy    *redis.StringSliceCmd
}

// load fetches records in one pipeline, skipping names that no longer exist
func (s *RedisStore) load(ctx context.Context, names []string) ([]*View, error) {
	if len(names) == 0 {
		return []*View{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]viewCmds, len(names))

	for i, name := range names {
		cmds[i] = viewCmds{
			hash:      pipe.HGetAll(ctx, s.viewKey(name)),
			tags:      pipe.SMembers(ctx, s.setKey(name, setTags)),
			tables:    pipe.SMembers(ctx, s.setKey(name, setTables)),
			dependsOn: pipe.SMembers(ctx, s.setKey(name, setDependsOn)),
			usedBy:    pipe.SMembers(ctx, s.setKey(name, setUsedBy)),
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: load views: %w", ErrStorage, err)
	}

	views := make([]*View, 0, len(names))
	for _, c := range cmds {
		fields := c.hash.Val()
		if len(fields) == 0 {
			continue
		}

		v, err := decodeView(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: decode view: %w", ErrStorage, err)
		}

		v.Tags = normalizeSet(c.tags.Val())
		v.BaseTables = normalizeSet(c.tables.Val())
		v.DependsOnViews = normalizeSet(c.dependsOn.Val())
		v.UsedByViews = normalizeSet(c.usedBy.Val())

		views = append(views, v)
	}

	return views, nil
}

func toArgs(items []string) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}

	return out
}

func intersect(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, item := range b {
		in[item] = struct{}{}
	}

	out := make([]string, 0, len(a))
	for _, item := range a {
		if _, ok := in[item]; ok {
			out = append(out, item)
		}
	}

	return out
}
