package store

import (
	"context"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
)

// AppointmentStore owns the appointment collection. List bounds are inclusive;
// a zero Date leaves that side open.
type AppointmentStore interface {
	ListAppointments(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (domain.Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	Subscribe(fn func(Change)) (unsubscribe func())
}

// AppointmentPatch carries the fields of a partial update; nil means unchanged.
type AppointmentPatch struct {
	PatientName  *string
	Professional *string
	Date         *domain.Date
	Time         *string
	Duration     *int
	Type         *domain.AppointmentType
	Modality     *domain.Modality
	Notes        *string
}

func (p AppointmentPatch) Apply(a *domain.Appointment) {
	if p.PatientName != nil {
		a.PatientName = *p.PatientName
	}
	if p.Professional != nil {
		a.Professional = *p.Professional
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Time != nil {
		a.Time = *p.Time
	}
	if p.Duration != nil {
		a.Duration = *p.Duration
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Modality != nil {
		a.Modality = *p.Modality
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
}

// MovesSlot reports whether applying the patch can change the occupied interval.
func (p AppointmentPatch) MovesSlot() bool {
	return p.Professional != nil || p.Date != nil || p.Time != nil || p.Duration != nil
}

// InRange reports whether d lies within the inclusive, optionally open range.
func InRange(d, from, to domain.Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}
