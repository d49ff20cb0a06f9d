package scheduleconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"clinicflow/backend/internal/domain"
)

const (
	clinicKey        = "clinicflow:schedule:clinic"
	professionalsKey = "clinicflow:schedule:professionals"
)

// RedisStore keeps schedules as JSON: the clinic week under one key and each
// professional's week as a field of one hash. Edits are picked up on the next
// read.
type RedisStore struct {
	redis redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

// ClinicSchedule returns the stored clinic week, or the default when none is set.
func (s *RedisStore) ClinicSchedule(ctx context.Context) (domain.WeeklySchedule, error) {
	data, err := s.redis.Get(ctx, clinicKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DefaultClinicSchedule(), nil
	}
	if err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("scheduleconfig: get clinic schedule: %w", err)
	}

	var w domain.WeeklySchedule
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("scheduleconfig: unmarshal clinic schedule: %w", err)
	}
	return w, nil
}

func (s *RedisStore) ProfessionalSchedules(ctx context.Context) ([]domain.ProfessionalSchedule, error) {
	fields, err := s.redis.HGetAll(ctx, professionalsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("scheduleconfig: list professional schedules: %w", err)
	}

	out := make([]domain.ProfessionalSchedule, 0, len(fields))
	for name, raw := range fields {
		var w domain.WeeklySchedule
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("scheduleconfig: unmarshal schedule for %q: %w", name, err)
		}
		out = append(out, domain.ProfessionalSchedule{Name: name, Week: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RedisStore) SetClinicSchedule(ctx context.Context, w domain.WeeklySchedule) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("scheduleconfig: marshal clinic schedule: %w", err)
	}
	if err := s.redis.Set(ctx, clinicKey, data, 0).Err(); err != nil {
		return fmt.Errorf("scheduleconfig: set clinic schedule: %w", err)
	}
	return nil
}

func (s *RedisStore) SetProfessionalSchedule(ctx context.Context, p domain.ProfessionalSchedule) error {
	if p.Name == "" {
		return errors.New("scheduleconfig: professional name is required")
	}
	data, err := json.Marshal(p.Week)
	if err != nil {
		return fmt.Errorf("scheduleconfig: marshal schedule for %q: %w", p.Name, err)
	}
	if err := s.redis.HSet(ctx, professionalsKey, p.Name, data).Err(); err != nil {
		return fmt.Errorf("scheduleconfig: set schedule for %q: %w", p.Name, err)
	}
	return nil
}

func (s *RedisStore) RemoveProfessional(ctx context.Context, name string) error {
	if err := s.redis.HDel(ctx, professionalsKey, name).Err(); err != nil {
		return fmt.Errorf("scheduleconfig: remove %q: %w", name, err)
	}
	return nil
}

// Seed writes the given schedules only where nothing is stored yet.
func (s *RedisStore) Seed(ctx context.Context, from *Static) error {
	data, err := json.Marshal(from.Clinic)
	if err != nil {
		return fmt.Errorf("scheduleconfig: marshal clinic schedule: %w", err)
	}
	if err := s.redis.SetNX(ctx, clinicKey, data, 0).Err(); err != nil {
		return fmt.Errorf("scheduleconfig: seed clinic schedule: %w", err)
	}
	for _, p := range from.Professionals {
		data, err := json.Marshal(p.Week)
		if err != nil {
			return fmt.Errorf("scheduleconfig: marshal schedule for %q: %w", p.Name, err)
		}
		if err := s.redis.HSetNX(ctx, professionalsKey, p.Name, data).Err(); err != nil {
			return fmt.Errorf("scheduleconfig: seed schedule for %q: %w", p.Name, err)
		}
	}
	return nil
}
