package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeReturn       AppointmentType = "return"
	TypeFirstVisit   AppointmentType = "first_visit"
	TypeSurgery      AppointmentType = "surgery"
	TypeExam         AppointmentType = "exam"
)

var appointmentTypeColors = map[AppointmentType]string{
	TypeConsultation: "#3b82f6",
	TypeReturn:       "#10b981",
	TypeFirstVisit:   "#8b5cf6",
	TypeSurgery:      "#ef4444",
	TypeExam:         "#f59e0b",
}

func (t AppointmentType) Valid() bool {
	_, ok := appointmentTypeColors[t]
	return ok
}

// Color is the marker color used by month views.
func (t AppointmentType) Color() string {
	if c, ok := appointmentTypeColors[t]; ok {
		return c
	}
	return "#6b7280"
}

type Modality string

const (
	ModalityInPerson Modality = "in_person"
	ModalityRemote   Modality = "remote"
)

func (m Modality) Valid() bool {
	return m == ModalityInPerson || m == ModalityRemote
}

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// CanTransitionTo reports whether the status machine allows s -> to.
func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	switch to {
	case StatusConfirmed:
		return s == StatusPending
	case StatusCancelled:
		return s == StatusPending || s == StatusConfirmed
	default:
		return false
	}
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID           uuid.UUID         `bun:"id,pk,type:uuid"`
	PatientName  string            `bun:"patient_name,notnull"`
	Professional string            `bun:"professional,notnull"`
	Date         Date              `bun:"date,notnull,type:date"`
	Time         string            `bun:"time,notnull"`
	Duration     int               `bun:"duration_minutes,notnull"`
	Type         AppointmentType   `bun:"type,notnull"`
	Modality     Modality          `bun:"modality,notnull"`
	Status       AppointmentStatus `bun:"status,notnull"`
	Notes        string            `bun:"notes"`
	CreatedAt    time.Time         `bun:"created_at,notnull"`
	UpdatedAt    time.Time         `bun:"updated_at,notnull"`
}

// Interval returns the appointment's minute range on its date.
func (a Appointment) Interval() (Interval, error) {
	return NewInterval(a.Time, a.Duration)
}

func (a Appointment) Cancelled() bool {
	return a.Status == StatusCancelled
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
