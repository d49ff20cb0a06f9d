package blockedslots

import (
	"time"

	"clinicflow/backend/internal/domain"
)

// DeriveClinicBlocks returns one recurring clinic-wide lunch block per
// working weekday that has an enabled, well-formed lunch window.
func DeriveClinicBlocks(week domain.WeeklySchedule) []domain.BlockedSlot {
	return derive(week, domain.ClinicLunchReason, "")
}

// DeriveProfessionalBlocks does the same for one professional, scoping every
// block to that professional.
func DeriveProfessionalBlocks(p domain.ProfessionalSchedule) []domain.BlockedSlot {
	return derive(p.Week, domain.ProfessionalLunchReason(p.Name), p.Name)
}

func derive(week domain.WeeklySchedule, reason, professional string) []domain.BlockedSlot {
	var out []domain.BlockedSlot
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		lunch, ok := week.Day(wd).LunchInterval()
		if !ok {
			continue
		}
		out = append(out, domain.BlockedSlot{
			When:         domain.Recurring{Weekday: wd},
			Time:         domain.FormatClock(lunch.Start),
			Duration:     lunch.Duration(),
			Reason:       reason,
			Professional: professional,
		})
	}
	return out
}
