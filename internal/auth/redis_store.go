package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultIdentityPrefix namespaces identity hashes in Redis.
const DefaultIdentityPrefix = "chatgate:identity:"

const (
	fieldRoles     = "roles"
	fieldUpdatedAt = "updated_at"
	fieldDisabled  = "disabled"
)

// RedisIdentityStore reads identities from Redis hashes keyed
// <prefix><principal> with fields roles (comma-separated), updated_at (unix
// milliseconds) and disabled ("1" when disabled).
type RedisIdentityStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisIdentityStore returns a store using rdb. An empty prefix selects
// DefaultIdentityPrefix.
func NewRedisIdentityStore(rdb redis.UniversalClient, prefix string) *RedisIdentityStore {
	if prefix == "" {
		prefix = DefaultIdentityPrefix
	}
	return &RedisIdentityStore{rdb: rdb, prefix: prefix}
}

func (s *RedisIdentityStore) key(principal string) string {
	return s.prefix + principal
}

// FindIdentity implements IdentityStore.
func (s *RedisIdentityStore) FindIdentity(ctx context.Context, principal string) (*Identity, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(principal)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrIdentityNotFound
	}

	id := &Identity{
		Principal: principal,
		Disabled:  fields[fieldDisabled] == "1",
	}
	if roles := fields[fieldRoles]; roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				id.Roles = append(id.Roles, role)
			}
		}
	}
	if id.UpdatedAt, err = parseUpdatedAt(principal, fields[fieldUpdatedAt]); err != nil {
		return nil, err
	}
	return id, nil
}

// FindStamp implements StampReader with a single HMGET.
func (s *RedisIdentityStore) FindStamp(ctx context.Context, principal string) (IdentityStamp, error) {
	values, err := s.rdb.HMGet(ctx, s.key(principal), fieldUpdatedAt, fieldDisabled).Result()
	if err != nil {
		return IdentityStamp{}, fmt.Errorf("%w: %w", ErrIdentityStoreUnavailable, err)
	}
	updated, _ := values[0].(string)
	disabled, _ := values[1].(string)
	if values[0] == nil && values[1] == nil {
		return IdentityStamp{}, ErrIdentityNotFound
	}

	stamp := IdentityStamp{Disabled: disabled == "1"}
	if stamp.UpdatedAt, err = parseUpdatedAt(principal, updated); err != nil {
		return IdentityStamp{}, err
	}
	return stamp, nil
}

func parseUpdatedAt(principal, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("identity %q has malformed %s: %w", principal, fieldUpdatedAt, err)
	}
	return time.UnixMilli(ms), nil
}

// Put writes id to Redis, replacing any previous record.
func (s *RedisIdentityStore) Put(ctx context.Context, id Identity) error {
	disabled := "0"
	if id.Disabled {
		disabled = "1"
	}
	key := s.key(id.Principal)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldRoles, strings.Join(id.Roles, ","),
			fieldUpdatedAt, strconv.FormatInt(id.UpdatedAt.UnixMilli(), 10),
			fieldDisabled, disabled,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIdentityStoreUnavailable, err)
	}
	return nil
}

// Delete removes principal's record.
func (s *RedisIdentityStore) Delete(ctx context.Context, principal string) error {
	if err := s.rdb.Del(ctx, s.key(principal)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIdentityStoreUnavailable, err)
	}
	return nil
}
