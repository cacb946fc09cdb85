package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"domainintel/internal/analysis/models"
	"domainintel/pkg/platform/sentinel"
)

const (
	recordKeyPrefix = ":domain:"
	indexKey        = ":domains"
	seqKey          = ":domains:seq"
)

// Each script touches a single record hash (plus the listing index), so it
// runs atomically on the server.
var (
	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local seq = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1], 'domain', ARGV[1], 'status', ARGV[2], 'created_at', ARGV[3], 'updated_at', ARGV[3])
redis.call('ZADD', KEYS[2], seq, ARGV[1])
return 1
`)

	reopenScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updated_at', ARGV[3])
redis.call('HDEL', KEYS[1], 'whois_data', 'virustotal_data')
return 1
`)

	saveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'whois_data', ARGV[2], 'virustotal_data', ARGV[3], 'updated_at', ARGV[4], 'last_scan_date', ARGV[4])
return 1
`)

	abandonScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'whois_data', ARGV[3], 'virustotal_data', ARGV[3], 'updated_at', ARGV[4])
return 1
`)
)

// RedisStore keeps one hash per domain and a sorted set ordered by
// insertion for listing.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis-backed store. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "domainintel"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordKey(domain string) string {
	return s.prefix + recordKeyPrefix + domain
}

func (s *RedisStore) Create(ctx context.Context, domain string, now time.Time) (bool, error) {
	keys := []string{s.recordKey(domain), s.prefix + indexKey, s.prefix + seqKey}
	n, err := createScript.Run(ctx, s.client, keys, domain, string(models.StatusPending), formatTime(now)).Int()
	if err != nil {
		return false, fmt.Errorf("create domain record: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, domain string) (*models.DomainRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(domain)).Result()
	if err != nil {
		return nil, fmt.Errorf("get domain record: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("get domain record: %w", sentinel.ErrNotFound)
	}
	return recordFromHash(fields)
}

func (s *RedisStore) List(ctx context.Context) ([]*models.DomainRecord, error) {
	domains, err := s.client.ZRevRange(ctx, s.prefix+indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list domain index: %w", err)
	}
	if len(domains) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(domains))
	for i, d := range domains {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(d))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list domain records: %w", err)
	}

	out := make([]*models.DomainRecord, 0, len(domains))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := recordFromHash(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Reopen(ctx context.Context, domain string, now time.Time) (bool, error) {
	n, err := reopenScript.Run(ctx, s.client, []string{s.recordKey(domain)},
		string(models.StatusError), string(models.StatusPending), formatTime(now)).Int()
	if err != nil {
		return false, fmt.Errorf("reopen domain record: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) SaveResult(ctx context.Context, domain string, result models.AnalysisResult) error {
	n, err := saveScript.Run(ctx, s.client, []string{s.recordKey(domain)},
		string(result.Status), string(result.RegistrationRaw), string(result.ReputationRaw), formatTime(result.ScannedAt)).Int()
	if err != nil {
		return fmt.Errorf("save analysis result: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Abandon(ctx context.Context, domain string, placeholder json.RawMessage, now time.Time) (bool, error) {
	n, err := abandonScript.Run(ctx, s.client, []string{s.recordKey(domain)},
		string(models.StatusPending), string(models.StatusError), string(placeholder), formatTime(now)).Int()
	if err != nil {
		return false, fmt.Errorf("abandon domain record: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func recordFromHash(fields map[string]string) (*models.DomainRecord, error) {
	rec := &models.DomainRecord{
		Domain: fields["domain"],
		Status: models.Status(fields["status"]),
	}
	if v := fields["whois_data"]; v != "" {
		rec.RegistrationRaw = json.RawMessage(v)
	}
	if v := fields["virustotal_data"]; v != "" {
		rec.ReputationRaw = json.RawMessage(v)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at for %s: %w", rec.Domain, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode updated_at for %s: %w", rec.Domain, err)
	}
	if v := fields["last_scan_date"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode last_scan_date for %s: %w", rec.Domain, err)
		}
		rec.LastScanAt = &t
	}
	return rec, nil
}
