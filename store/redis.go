package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/sixlowan/otafw"
)

// sessionKey is the single Redis key holding the active session record.
// The single-session invariant (spec.md §3) is enforced by always
// writing/reading this one key, never a per-id key: there is nothing to
// disambiguate between, by construction.
const sessionKey = "ota:session"

// redisRecord is the JSON wire shape stored in Redis. Record itself is
// not JSON-tagged (its field names already read cleanly), so this
// mirror only exists to keep SessionID's [16]byte array readable as
// hex rather than base64-in-an-array-of-numbers.
type redisRecord struct {
	SessionID           string `json:"session_id"`
	DeviceType          uint8  `json:"device_type"`
	FWTotalByteCount    uint32 `json:"fw_total_byte_count"`
	FWFragmentByteCount uint16 `json:"fw_fragment_byte_count"`
	WholeFWChecksum     string `json:"whole_fw_checksum"`
	PullURL             string `json:"pull_url"`
	State               uint8  `json:"state"`
	Bitmask             string `json:"bitmask"`
}

// RedisStore persists the single active session row in Redis, following
// the same redis.UniversalClient collaborator pattern as
// backend/client.go's ClientConfig.RedisClient — a store here is a thin
// adapter around whichever Redis deployment (single node, sentinel,
// cluster) the operator already runs for the rest of the fleet
// management stack.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an already-configured redis.UniversalClient.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) encode(rec Record) (string, error) {
	rr := redisRecord{
		SessionID:           rec.SessionID.String(),
		DeviceType:          uint8(rec.DeviceType),
		FWTotalByteCount:    rec.FWTotalByteCount,
		FWFragmentByteCount: rec.FWFragmentByteCount,
		WholeFWChecksum:     hexEncode(rec.WholeFWChecksum[:]),
		PullURL:             rec.PullURL,
		State:               uint8(rec.State),
		Bitmask:             hexEncode(rec.Bitmask),
	}
	b, err := json.Marshal(rr)
	if err != nil {
		return "", errors.Wrap(err, "json marshal error")
	}
	return string(b), nil
}

func (r *RedisStore) decode(s string) (Record, error) {
	var rr redisRecord
	if err := json.Unmarshal([]byte(s), &rr); err != nil {
		return Record{}, errors.Wrap(err, "json unmarshal error")
	}

	rec := Record{
		DeviceType:          ota.DeviceType(rr.DeviceType),
		FWTotalByteCount:    rr.FWTotalByteCount,
		FWFragmentByteCount: rr.FWFragmentByteCount,
		PullURL:             rr.PullURL,
		State:               ota.State(rr.State),
	}
	rec.SessionID = ota.NewSessionID(rr.SessionID)

	checksum, err := hexDecode(rr.WholeFWChecksum)
	if err != nil {
		return Record{}, errors.Wrap(err, "decode checksum")
	}
	copy(rec.WholeFWChecksum[:], checksum)

	bitmask, err := hexDecode(rr.Bitmask)
	if err != nil {
		return Record{}, errors.Wrap(err, "decode bitmask")
	}
	rec.Bitmask = bitmask

	return rec, nil
}

// StoreNew implements Store.
func (r *RedisStore) StoreNew(ctx context.Context, rec Record) error {
	existing, err := r.Load(ctx)
	if err == nil && existing.SessionID != rec.SessionID {
		return ErrSessionExists
	}
	if err != nil && err != ErrNoSession {
		return err
	}
	return r.Store(ctx, rec)
}

// Store implements Store.
func (r *RedisStore) Store(ctx context.Context, rec Record) error {
	enc, err := r.encode(rec)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, sessionKey, enc, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set error")
	}
	return nil
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (Record, error) {
	s, err := r.client.Get(ctx, sessionKey).Result()
	if err == redis.Nil {
		return Record{}, ErrNoSession
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "redis get error")
	}
	return r.decode(s)
}

// Remove implements Store.
func (r *RedisStore) Remove(ctx context.Context, id ota.SessionID) error {
	existing, err := r.Load(ctx)
	if err == ErrNoSession {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.SessionID != id {
		return nil
	}
	if err := r.client.Del(ctx, sessionKey).Err(); err != nil {
		return errors.Wrap(err, "redis del error")
	}
	return nil
}

// Ready implements Store.
func (r *RedisStore) Ready(ctx context.Context) (bool, error) {
	_, err := r.Load(ctx)
	if err == ErrNoSession {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
