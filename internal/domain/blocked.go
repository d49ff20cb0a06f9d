package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AllProfessionals is the calendar filter value that selects every professional.
const AllProfessionals = "all"

const (
	ClinicLunchReason       = "Clinic Lunch"
	professionalLunchPrefix = "Lunch - "
)

// ProfessionalLunchReason is the reason stamped on a professional's recurring lunch block.
func ProfessionalLunchReason(professional string) string {
	return professionalLunchPrefix + professional
}

func IsClinicLunch(b BlockedSlot) bool {
	return b.Reason == ClinicLunchReason
}

func IsProfessionalLunch(b BlockedSlot, professional string) bool {
	return b.Professional == professional && strings.HasPrefix(b.Reason, professionalLunchPrefix)
}

// IsAnyProfessionalLunch matches a generated lunch block of any professional.
func IsAnyProfessionalLunch(b BlockedSlot) bool {
	return b.Professional != "" && strings.HasPrefix(b.Reason, professionalLunchPrefix)
}

// IsGeneratedLunchReason reports whether reason is one the lunch synchronizer
// stamps on the blocks it owns.
func IsGeneratedLunchReason(reason string) bool {
	return reason == ClinicLunchReason || strings.HasPrefix(reason, professionalLunchPrefix)
}

// BlockKey says on which dates a blocked slot applies: Recurring or Dated.
type BlockKey interface {
	AppliesOn(d Date) bool
	String() string
	isBlockKey()
}

// Recurring applies every week on Weekday.
type Recurring struct {
	Weekday time.Weekday
}

func (r Recurring) AppliesOn(d Date) bool { return d.Weekday() == r.Weekday }

func (r Recurring) String() string { return "every " + r.Weekday.String() }

func (Recurring) isBlockKey() {}

// Dated applies on one specific date.
type Dated struct {
	Date Date
}

func (k Dated) AppliesOn(d Date) bool { return k.Date == d }

func (k Dated) String() string { return "on " + k.Date.String() }

func (Dated) isBlockKey() {}

type BlockedSlot struct {
	ID           uuid.UUID
	When         BlockKey
	Time         string
	Duration     int
	Reason       string
	Professional string
	CreatedAt    time.Time
}

func (b BlockedSlot) Interval() (Interval, error) {
	return NewInterval(b.Time, b.Duration)
}

func (b BlockedSlot) AppliesOn(d Date) bool {
	return b.When != nil && b.When.AppliesOn(d)
}

func (b BlockedSlot) ClinicWide() bool {
	return b.Professional == ""
}

// AppliesTo reports whether the block constrains the given professional scope.
// Clinic-wide blocks always apply. A professional's block applies only to that
// professional; an empty scope or the "all" filter sees clinic-wide blocks only.
func (b BlockedSlot) AppliesTo(professional string) bool {
	if b.ClinicWide() {
		return true
	}
	if professional == "" || professional == AllProfessionals {
		return false
	}
	return b.Professional == professional
}

// SameValue compares every field except ID and CreatedAt.
func (b BlockedSlot) SameValue(o BlockedSlot) bool {
	return b.When == o.When &&
		b.Time == o.Time &&
		b.Duration == o.Duration &&
		b.Reason == o.Reason &&
		b.Professional == o.Professional
}

func (b BlockedSlot) Validate() error {
	if b.When == nil {
		return fmt.Errorf("blocked slot needs a weekday or a date")
	}
	if d, ok := b.When.(Dated); ok && d.Date.IsZero() {
		return fmt.Errorf("dated blocked slot needs a date")
	}
	if r, ok := b.When.(Recurring); ok && (r.Weekday < time.Sunday || r.Weekday > time.Saturday) {
		return fmt.Errorf("invalid weekday %d", r.Weekday)
	}
	if _, err := b.Interval(); err != nil {
		return err
	}
	return nil
}
