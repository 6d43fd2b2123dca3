package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"faceattend/internal/apperrors"
	"faceattend/internal/export"
	"faceattend/internal/metrics"
	"faceattend/internal/recognition"
)

// BlobWriter stores enrolled reference images.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Roster loads class rosters and tracks enrollments.
type Roster interface {
	Load(ctx context.Context, class string) ([]recognition.Reference, error)
	Invalidate(ctx context.Context, class string)
	Classes(ctx context.Context) ([]string, error)
}

// Resolver maps a probe image to a roster identity.
type Resolver interface {
	Resolve(ctx context.Context, probe []byte, roster []recognition.Reference) (recognition.Result, error)
}

// Request is one kiosk submission.
type Request struct {
	Class    string `validate:"required,max=128"`
	Name     string `validate:"required_if=Intent register,max=128"`
	Intent   Intent `validate:"required,oneof=register attendance checkout"`
	Filename string `validate:"required"`
	Image    []byte `validate:"required,min=1"`
}

// Outcome reports a successful submission.
type Outcome struct {
	Identity recognition.Identity `json:"identity"`
	Status   Status               `json:"status"`
	Message  string               `json:"message"`
	Record   Record               `json:"record"`
}

// Options tunes the service; zero values take defaults.
type Options struct {
	Location       *time.Location
	Retries        int
	MaxImageBytes  int64
	Now            func() time.Time
	Logger         *zap.Logger
	ValidateEngine *validator.Validate
}

// Service coordinates enrollment, recognition and attendance transitions.
type Service struct {
	records  RecordStore
	blobs    BlobWriter
	roster   Roster
	resolver Resolver

	loc      *time.Location
	retries  int
	maxImage int64
	now      func() time.Time
	logger   *zap.Logger
	validate *validator.Validate
}

// NewService wires the collaborators of the attendance flow.
func NewService(records RecordStore, blobs BlobWriter, roster Roster, resolver Resolver, opts Options) *Service {
	s := &Service{
		records:  records,
		blobs:    blobs,
		roster:   roster,
		resolver: resolver,
		loc:      opts.Location,
		retries:  opts.Retries,
		maxImage: opts.MaxImageBytes,
		now:      opts.Now,
		logger:   opts.Logger,
		validate: opts.ValidateEngine,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.retries <= 0 {
		s.retries = 3
	}
	if s.maxImage <= 0 {
		s.maxImage = 5 * 1024 * 1024
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.validate == nil {
		s.validate = validator.New()
	}
	return s
}

// Submit validates req and runs registration or recognition plus transition.
func (s *Service) Submit(ctx context.Context, req Request) (Outcome, error) {
	out, err := s.submit(ctx, req)
	outcome := "ok"
	if err != nil {
		appErr := apperrors.FromError(err)
		outcome = appErr.Code
		if appErr.Reason != "" {
			outcome = appErr.Reason
		}
	}
	metrics.Transitions.WithLabelValues(string(req.Intent), outcome).Inc()
	return out, err
}

func (s *Service) submit(ctx context.Context, req Request) (Outcome, error) {
	if err := s.validateRequest(req); err != nil {
		return Outcome{}, err
	}

	if req.Intent == IntentRegister {
		return s.register(ctx, req)
	}

	roster, err := s.roster.Load(ctx, req.Class)
	if err != nil {
		return Outcome{}, err
	}
	res, err := s.resolver.Resolve(ctx, req.Image, roster)
	if err != nil {
		return Outcome{}, err
	}
	if !res.Matched {
		s.logger.Info("probe unmatched",
			zap.String("class", req.Class),
			zap.Int("roster_size", len(roster)),
			zap.Int("comparisons", res.Comparisons))
		return Outcome{}, apperrors.ErrNoMatch
	}

	return s.transition(ctx, res.Identity, req.Intent)
}

func (s *Service) register(ctx context.Context, req Request) (Outcome, error) {
	id := recognition.Identity{Class: req.Class, Name: req.Name}
	now := s.now()

	key := recognition.BuildKey(id.Class, id.Name, req.Filename, now)
	if _, err := s.blobs.Put(ctx, key, req.Image, recognition.ContentType(req.Filename)); err != nil {
		s.logger.Error("reference upload failed", zap.String("key", key), zap.Error(err))
		return Outcome{}, apperrors.StoreUnavailable(err, "store reference image failed")
	}

	rec, err := Transition(id, IntentRegister, nil, now, s.loc)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.records.Upsert(ctx, rec); err != nil {
		s.logger.Error("registration record write failed", zap.String("student", id.Key()), zap.String("key", key), zap.Error(err))
		return Outcome{}, apperrors.StoreUnavailable(err, "record registration failed")
	}
	s.roster.Invalidate(ctx, id.Class)

	s.logger.Info("student registered", zap.String("student", id.Key()), zap.String("key", key))
	return Outcome{
		Identity: id,
		Status:   rec.Status,
		Message:  fmt.Sprintf("Face registered for %s", id.Name),
		Record:   rec,
	}, nil
}

// transition applies intent with an optimistic read-decide-write loop.
func (s *Service) transition(ctx context.Context, id recognition.Identity, intent Intent) (Outcome, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		current, err := s.records.Get(ctx, id)
		if err != nil {
			return Outcome{}, apperrors.StoreUnavailable(err, "read attendance record failed")
		}

		next, err := Transition(id, intent, current, s.now(), s.loc)
		if err != nil {
			return Outcome{}, err
		}

		var expected int64
		if current != nil {
			expected = current.Version
		}
		next.Version = expected + 1

		err = s.records.PutIfMatch(ctx, expected, next)
		if errors.Is(err, ErrConflict) {
			metrics.TransitionConflicts.Inc()
			s.logger.Warn("attendance write conflict, retrying",
				zap.String("student", id.Key()),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Outcome{}, apperrors.StoreUnavailable(err, "write attendance record failed")
		}

		s.logger.Info("attendance updated",
			zap.String("student", id.Key()),
			zap.String("status", string(next.Status)),
			zap.String("date", next.Date))
		return Outcome{
			Identity: id,
			Status:   next.Status,
			Message:  fmt.Sprintf("%s marked for %s", next.Status, id.Name),
			Record:   next,
		}, nil
	}
	return Outcome{}, apperrors.StoreUnavailable(ErrConflict,
		fmt.Sprintf("attendance record kept changing after %d attempts", s.retries))
}

func (s *Service) validateRequest(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.Validation(fmt.Sprintf("missing or invalid %s", strings.ToLower(verrs[0].Field())))
		}
		return apperrors.Validation(err.Error())
	}
	if !recognition.ValidSegment(req.Class) {
		return apperrors.Validation("invalid class name")
	}
	if req.Intent == IntentRegister && !recognition.ValidSegment(req.Name) {
		return apperrors.Validation("invalid student name")
	}
	if recognition.ContentType(req.Filename) == "" {
		return apperrors.Validation("invalid file type")
	}
	if int64(len(req.Image)) > s.maxImage {
		return apperrors.Validation(fmt.Sprintf("image exceeds %d bytes", s.maxImage))
	}
	return nil
}

// Classes lists the classes that have enrolled objects.
func (s *Service) Classes(ctx context.Context) ([]string, error) {
	return s.roster.Classes(ctx)
}

// ExportHeaders are the columns of the class attendance report.
var ExportHeaders = []string{"studentName", "date", "status", "timestamp"}

// Export renders every record of class as CSV, ordered by student name.
func (s *Service) Export(ctx context.Context, class string) ([]byte, error) {
	if !recognition.ValidSegment(class) {
		return nil, apperrors.Validation("invalid class name")
	}
	records, err := s.records.ListByClass(ctx, class)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "list attendance records failed")
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Student < records[j].Student })

	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		if rec.Class != class {
			continue
		}
		rows = append(rows, map[string]string{
			"studentName": rec.Student,
			"date":        rec.Date,
			"status":      string(rec.Status),
			"timestamp":   rec.UpdatedAt.In(s.loc).Format(time.RFC3339),
		})
	}
	return export.CSV(export.Dataset{Headers: ExportHeaders, Rows: rows})
}
