// Package scheduleconfig supplies the clinic-wide and per-professional weekly
// work schedules that lunch blocks are derived from.
package scheduleconfig

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"clinicflow/backend/internal/domain"
)

// Provider is read-only schedule configuration.
type Provider interface {
	ClinicSchedule(ctx context.Context) (domain.WeeklySchedule, error)
	ProfessionalSchedules(ctx context.Context) ([]domain.ProfessionalSchedule, error)
}

// Static serves schedules fixed at construction.
type Static struct {
	Clinic        domain.WeeklySchedule
	Professionals []domain.ProfessionalSchedule
}

func (s *Static) ClinicSchedule(ctx context.Context) (domain.WeeklySchedule, error) {
	return s.Clinic, nil
}

func (s *Static) ProfessionalSchedules(ctx context.Context) ([]domain.ProfessionalSchedule, error) {
	out := make([]domain.ProfessionalSchedule, len(s.Professionals))
	copy(out, s.Professionals)
	return out, nil
}

type fileSchedule struct {
	Clinic        *domain.WeeklySchedule        `mapstructure:"clinic"`
	Professionals []domain.ProfessionalSchedule `mapstructure:"professionals"`
}

// LoadStatic reads the "schedule" section of v. A missing clinic schedule
// falls back to domain.DefaultClinicSchedule.
func LoadStatic(v *viper.Viper) (*Static, error) {
	var fs fileSchedule
	if err := v.UnmarshalKey("schedule", &fs); err != nil {
		return nil, fmt.Errorf("schedule config: %w", err)
	}

	s := &Static{Clinic: domain.DefaultClinicSchedule()}
	if fs.Clinic != nil {
		s.Clinic = *fs.Clinic
	}

	seen := make(map[string]struct{}, len(fs.Professionals))
	for _, p := range fs.Professionals {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("schedule config: professional without name")
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("schedule config: professional %q listed twice", p.Name)
		}
		seen[p.Name] = struct{}{}
		s.Professionals = append(s.Professionals, p)
	}
	sort.Slice(s.Professionals, func(i, j int) bool { return s.Professionals[i].Name < s.Professionals[j].Name })
	return s, nil
}
