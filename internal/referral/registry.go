package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// registerRetries bounds optimistic retries when a watched key changes
// between the checks and the write. An owner set can only grow
// MaxCodesPerOwner times, so this outlasts any burst for one owner.
const registerRetries = 2 * MaxCodesPerOwner

const (
	indexKey    = "referral:index"
	codePrefix  = "referral:code:"
	ownerPrefix = "referral:owner:"
)

// RedisRegistry keeps registered codes in Redis: one JSON value per code
// plus a global index set and a per-owner set.
type RedisRegistry struct {
	client redis.UniversalClient
}

func NewRedisRegistry(client redis.UniversalClient) (*RedisRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Register(ctx context.Context, code, owner string) (*Code, error) {
	c, err := Normalize(code)
	if err != nil {
		return nil, err
	}
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	rec := &Code{Code: c, Owner: owner, CreatedAt: time.Now().UTC()}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal code: %w", err)
	}

	// The code key and the owner set are watched, so the cap check and the
	// claim commit together or the attempt is retried.
	register := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, codeKey(c)).Result()
		if err != nil {
			return fmt.Errorf("check code: %w", err)
		}
		if exists > 0 {
			return ErrCodeTaken
		}
		n, err := tx.SCard(ctx, ownerKey(owner)).Result()
		if err != nil {
			return fmt.Errorf("count owner codes: %w", err)
		}
		if n >= MaxCodesPerOwner {
			return ErrOwnerLimit
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, codeKey(c), b, 0)
			pipe.SAdd(ctx, indexKey, c)
			pipe.SAdd(ctx, ownerKey(owner), c)
			return nil
		})
		return err
	}

	for i := 0; i < registerRetries; i++ {
		err = r.client.Watch(ctx, register, codeKey(c), ownerKey(owner))
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return nil, fmt.Errorf("register code %q: too much contention", c)
	case errors.Is(err, ErrCodeTaken), errors.Is(err, ErrOwnerLimit):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("register code: %w", err)
	}
	return rec, nil
}

func (r *RedisRegistry) Get(ctx context.Context, code string) (*Code, error) {
	c, err := Normalize(code)
	if err != nil {
		return nil, err
	}

	val, err := r.client.Get(ctx, codeKey(c)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}

	var rec Code
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal code: %w", err)
	}
	return &rec, nil
}

func (r *RedisRegistry) ListByOwner(ctx context.Context, owner string) ([]*Code, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	codes, err := r.client.SMembers(ctx, ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("list owner codes: %w", err)
	}
	return r.load(ctx, codes)
}

// List returns every registered code.
func (r *RedisRegistry) List(ctx context.Context) ([]*Code, error) {
	codes, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list codes index: %w", err)
	}
	return r.load(ctx, codes)
}

func (r *RedisRegistry) load(ctx context.Context, codes []string) ([]*Code, error) {
	if len(codes) == 0 {
		return []*Code{}, nil
	}

	keys := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, err := Normalize(c); err != nil {
			continue
		}
		keys = append(keys, codeKey(c))
	}
	if len(keys) == 0 {
		return []*Code{}, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget codes: %w", err)
	}

	out := make([]*Code, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec Code
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, code string) error {
	rec, err := r.Get(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, codeKey(rec.Code))
		pipe.SRem(ctx, indexKey, rec.Code)
		pipe.SRem(ctx, ownerKey(rec.Owner), rec.Code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// ValidateCode implements Oracle.
func (r *RedisRegistry) ValidateCode(ctx context.Context, code string) (Validation, error) {
	return validateWith(ctx, code, r.Get)
}

func validateWith(ctx context.Context, code string, get func(context.Context, string) (*Code, error)) (Validation, error) {
	if _, err := Normalize(code); err != nil {
		return Validation{}, nil
	}
	rec, err := get(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return Validation{IsValidFormat: true}, nil
	}
	if err != nil {
		return Validation{}, err
	}
	owner := rec.Owner
	return Validation{IsValidFormat: true, IsRegistered: true, Owner: &owner}, nil
}

func codeKey(code string) string   { return codePrefix + code }
func ownerKey(owner string) string { return ownerPrefix + owner }
