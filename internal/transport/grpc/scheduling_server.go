package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicflow/backend/internal/calendar"
	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/lock"
	"clinicflow/backend/internal/reschedule"
	"clinicflow/backend/internal/service/appointments"
	"clinicflow/backend/internal/service/blockedslots"
	"clinicflow/backend/internal/store"
)

type bookingService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, patch store.AppointmentPatch) (domain.Appointment, error)
	List(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindConflict(ctx context.Context, q appointments.ConflictQuery) (appointments.Conflict, bool, error)
	ListBlockedSlots(ctx context.Context) ([]domain.BlockedSlot, error)
	AddBlockedSlot(ctx context.Context, in appointments.BlockInput) (domain.BlockedSlot, error)
	RemoveBlockedSlot(ctx context.Context, id uuid.UUID) error
}

type calendarProjector interface {
	Project(ctx context.Context, q calendar.Query) (calendar.Projection, error)
	Watch(ctx context.Context, q calendar.Query, tick time.Duration, fn func(calendar.Projection, error))
}

type lunchSyncer interface {
	SyncAll(ctx context.Context) (blockedslots.Report, error)
}

type scheduleEditor interface {
	SetClinicSchedule(ctx context.Context, w domain.WeeklySchedule) error
	SetProfessionalSchedule(ctx context.Context, p domain.ProfessionalSchedule) error
	RemoveProfessional(ctx context.Context, name string) error
}

var errSchedulesReadOnly = errors.New("schedules are read-only with a static schedule source")

// Deps are the components behind SchedulingServer. NewEngine builds the drag
// engine for one request; Schedules is nil when schedules cannot be edited.
type Deps struct {
	Booking   bookingService
	NewEngine func() *reschedule.Engine
	Projector calendarProjector
	Sync      lunchSyncer
	Schedules scheduleEditor
	WatchTick time.Duration
	Log       *slog.Logger
}

type SchedulingServer struct {
	svc       bookingService
	newEngine func() *reschedule.Engine
	projector calendarProjector
	sync      lunchSyncer
	schedules scheduleEditor
	watchTick time.Duration
	log       *slog.Logger
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

func NewSchedulingServer(d Deps) *SchedulingServer {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc:       d.Booking,
		newEngine: d.NewEngine,
		projector: d.Projector,
		sync:      d.Sync,
		schedules: d.Schedules,
		watchTick: d.WatchTick,
		log:       log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) CheckConflict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckConflict"))

	date, err := dateField(req, "date", true)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	duration, _, err := intField(req, "duration")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	exclude, err := idField(req, "exclude_id", false)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	c, found, err := s.svc.FindConflict(ctx, appointments.ConflictQuery{
		Date:         date,
		Time:         stringField(req, "time"),
		Duration:     duration,
		ExcludeID:    exclude,
		Professional: stringField(req, "professional"),
	})
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	doc := map[string]any{"conflict": found}
	if found {
		doc["detail"] = conflictDoc(c)
	}
	return newStruct(doc)
}

func (s *SchedulingServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))

	date, err := dateField(req, "date", true)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	duration, _, err := intField(req, "duration")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	appt, err := s.svc.Create(ctx, appointments.CreateInput{
		PatientName:  stringField(req, "patient_name"),
		Professional: stringField(req, "professional"),
		Date:         date,
		Time:         stringField(req, "time"),
		Duration:     duration,
		Type:         domain.AppointmentType(stringField(req, "type")),
		Modality:     domain.Modality(stringField(req, "modality")),
		Notes:        stringField(req, "notes"),
	})
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	log.InfoContext(ctx, "appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("professional", appt.Professional),
		slog.String("slot", appt.Date.String()+" "+appt.Time),
	)
	return newStruct(map[string]any{"appointment": appointmentDoc(appt)})
}

func (s *SchedulingServer) ConfirmAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "ConfirmAppointment", req, s.svc.Confirm)
}

func (s *SchedulingServer) CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "CancelAppointment", req, s.svc.Cancel)
}

func (s *SchedulingServer) transition(ctx context.Context, rpc string, req *structpb.Struct, fn func(context.Context, uuid.UUID) (domain.Appointment, error)) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))

	id, err := idField(req, "appointment_id", true)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	appt, err := fn(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	log.InfoContext(ctx, "appointment status changed",
		slog.String("appointment_id", id.String()),
		slog.String("status", string(appt.Status)),
	)
	return newStruct(map[string]any{"appointment": appointmentDoc(appt)})
}

func (s *SchedulingServer) DeleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteAppointment"))

	id, err := idField(req, "appointment_id", true)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	log.InfoContext(ctx, "appointment deleted", slog.String("appointment_id", id.String()))
	return newStruct(map[string]any{"deleted": true})
}

// PreviewDrop reports where a drag at the given pointer position would land
// without moving anything. Each request drives its own engine, so one
// client's drag never blocks another's.
func (s *SchedulingServer) PreviewDrop(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "PreviewDrop"))

	id, target, err := targetFrom(req)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	engine := s.newEngine()
	if _, err := engine.BeginDrag(ctx, id); err != nil {
		return nil, s.fail(ctx, log, err)
	}
	defer engine.Cancel()

	p, err := engine.Hover(ctx, target)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	return newStruct(map[string]any{"preview": previewDoc(p)})
}

func (s *SchedulingServer) DropAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DropAppointment"))

	id, target, err := targetFrom(req)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	engine := s.newEngine()
	if _, err := engine.BeginDrag(ctx, id); err != nil {
		return nil, s.fail(ctx, log, err)
	}
	moved, err := engine.Drop(ctx, target)
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	return newStruct(map[string]any{"appointment": appointmentDoc(moved)})
}

func (s *SchedulingServer) ProjectCalendar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ProjectCalendar"))

	q, err := calendarQuery(req)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	p, err := s.projector.Project(ctx, q)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	return newStruct(projectionDoc(p))
}

// WatchCalendar streams the projection once and again after every store
// change, until the client goes away.
func (s *SchedulingServer) WatchCalendar(req *structpb.Struct, stream CalendarStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	log := s.log.With(slog.String("rpc", "WatchCalendar"))

	q, err := calendarQuery(req)
	if err != nil {
		return s.fail(ctx, log, err)
	}

	var streamErr error
	s.projector.Watch(ctx, q, s.watchTick, func(p calendar.Projection, err error) {
		if err == nil {
			var doc *structpb.Struct
			if doc, err = newStruct(projectionDoc(p)); err == nil {
				err = stream.Send(doc)
			}
		}
		if err != nil {
			streamErr = err
			cancel()
		}
	})
	if streamErr != nil {
		return s.fail(ctx, log, streamErr)
	}
	return nil
}

func calendarQuery(req *structpb.Struct) (calendar.Query, error) {
	mode, err := calendar.ParseMode(stringField(req, "view"))
	if err != nil {
		return calendar.Query{}, &fieldError{field: "view", reason: "must be day, week or month"}
	}
	anchor, err := dateField(req, "anchor", false)
	if err != nil {
		return calendar.Query{}, err
	}
	professional := stringField(req, "professional")
	if professional == "" {
		professional = domain.AllProfessionals
	}
	return calendar.Query{Mode: mode, Anchor: anchor, Professional: professional}, nil
}

func (s *SchedulingServer) SyncLunchBlocks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SyncLunchBlocks"))

	rep, err := s.sync.SyncAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	return newStruct(syncReportDoc(rep))
}

func (s *SchedulingServer) UpdateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateAppointment"))

	id, patch, err := patchFrom(req)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	appt, err := s.svc.Update(ctx, id, patch)
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	log.InfoContext(ctx, "appointment updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("slot", appt.Date.String()+" "+appt.Time),
	)
	return newStruct(map[string]any{"appointment": appointmentDoc(appt)})
}

func (s *SchedulingServer) ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	from, err := dateField(req, "from", false)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	to, err := dateField(req, "to", false)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	appts, err := s.svc.List(ctx, from, to)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	docs := make([]any, len(appts))
	for i, a := range appts {
		docs[i] = appointmentDoc(a)
	}
	return newStruct(map[string]any{"appointments": docs})
}

func (s *SchedulingServer) ListBlockedSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListBlockedSlots"))

	blocks, err := s.svc.ListBlockedSlots(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	docs := make([]any, len(blocks))
	for i, b := range blocks {
		docs[i] = blockedSlotDoc(b)
	}
	return newStruct(map[string]any{"blocked_slots": docs})
}

func (s *SchedulingServer) AddBlockedSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "AddBlockedSlot"))

	in, err := blockInputFrom(req)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	b, err := s.svc.AddBlockedSlot(ctx, in)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	return newStruct(map[string]any{"blocked_slot": blockedSlotDoc(b)})
}

func (s *SchedulingServer) RemoveBlockedSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "RemoveBlockedSlot"))

	id, err := idField(req, "blocked_slot_id", true)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	if err := s.svc.RemoveBlockedSlot(ctx, id); err != nil {
		return nil, s.fail(ctx, log.With(slog.String("blocked_slot_id", id.String())), err)
	}
	log.InfoContext(ctx, "blocked slot removed", slog.String("blocked_slot_id", id.String()))
	return newStruct(map[string]any{"removed": true})
}

// SetSchedule replaces the clinic schedule, or one professional's when
// "professional" is set, then resyncs the lunch blocks. "remove": true drops
// the professional instead.
func (s *SchedulingServer) SetSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetSchedule"))

	if s.schedules == nil {
		return nil, s.fail(ctx, log, errSchedulesReadOnly)
	}
	professional := stringField(req, "professional")
	remove := req.GetFields()["remove"].GetBoolValue()

	switch {
	case remove && professional == "":
		return nil, s.fail(ctx, log, &fieldError{field: "professional", reason: "is required to remove a schedule"})
	case remove:
		if err := s.schedules.RemoveProfessional(ctx, professional); err != nil {
			return nil, s.fail(ctx, log, err)
		}
	default:
		week, err := weekField(req, "week")
		if err != nil {
			return nil, s.fail(ctx, log, err)
		}
		if professional == "" {
			err = s.schedules.SetClinicSchedule(ctx, week)
		} else {
			err = s.schedules.SetProfessionalSchedule(ctx, domain.ProfessionalSchedule{Name: professional, Week: week})
		}
		if err != nil {
			return nil, s.fail(ctx, log, err)
		}
	}
	log.InfoContext(ctx, "schedule changed", slog.String("professional", professional), slog.Bool("removed", remove))

	rep, err := s.sync.SyncAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	return newStruct(syncReportDoc(rep))
}

func weekField(req *structpb.Struct, name string) (domain.WeeklySchedule, error) {
	v, ok := req.GetFields()[name]
	if !ok || v.GetStructValue() == nil {
		return domain.WeeklySchedule{}, &fieldError{field: name, reason: "is required"}
	}
	raw, err := protojson.Marshal(v.GetStructValue())
	if err != nil {
		return domain.WeeklySchedule{}, &fieldError{field: name, reason: "is not a schedule"}
	}
	var w domain.WeeklySchedule
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.WeeklySchedule{}, &fieldError{field: name, reason: "is not a schedule"}
	}
	if err := w.Validate(); err != nil {
		return domain.WeeklySchedule{}, &fieldError{field: name, reason: err.Error()}
	}
	return w, nil
}

// fail logs err at a level matching its kind and maps it to a gRPC status.
func (s *SchedulingServer) fail(ctx context.Context, log *slog.Logger, err error) error {
	var (
		fErr        *fieldError
		vErr        *appointments.ValidationError
		conflictErr *appointments.ConflictError
		pastErr     *appointments.PastTimeError
		nfErr       *appointments.NotFoundError
	)
	switch {
	case errors.As(err, &fErr):
		log.WarnContext(ctx, "invalid request", slog.String("reason", fErr.Error()))
		return status.Error(codes.InvalidArgument, fErr.Error())
	case errors.As(err, &vErr):
		log.WarnContext(ctx, "invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &conflictErr):
		log.InfoContext(ctx, "slot unavailable", slog.String("conflict", conflictErr.Conflict.String()))
		return status.Error(codes.FailedPrecondition, "That time is already taken. Pick a different slot.")
	case errors.As(err, &pastErr):
		log.InfoContext(ctx, "slot in the past", slog.String("date", pastErr.Date.String()), slog.String("time", pastErr.Time))
		return status.Error(codes.FailedPrecondition, "That time has already passed. Pick a future slot.")
	case errors.Is(err, store.ErrConflict):
		log.InfoContext(ctx, "store conflict", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, "That time is already taken. Pick a different slot.")
	case errors.Is(err, reschedule.ErrInvalidTarget):
		log.WarnContext(ctx, "invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errSchedulesReadOnly):
		log.InfoContext(ctx, "schedule edit rejected", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, reschedule.ErrNotDraggable):
		log.InfoContext(ctx, "drag rejected", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &nfErr):
		log.InfoContext(ctx, "not found", slog.String("id", nfErr.ID.String()))
		return status.Error(codes.NotFound, nfErr.Error())
	case errors.Is(err, reschedule.ErrDragInProgress), errors.Is(err, lock.ErrNotAcquired):
		log.InfoContext(ctx, "request contended", slog.Any("err", err))
		return status.Error(codes.Aborted, "Another change is in progress. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		log.WarnContext(ctx, "request timed out", slog.Any("err", err))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	default:
		log.ErrorContext(ctx, "request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}
