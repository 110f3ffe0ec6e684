package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/core/ports"
	"github.com/atvirokodosprendimai/swmanager/internal/core/version"
)

type SoftwareService struct {
	repo      ports.SoftwareRepository
	scheduler ports.TransitionScheduler
	events    *eventEmitter
}

func NewSoftwareService(repo ports.SoftwareRepository, scheduler ports.TransitionScheduler, publisher ports.EventPublisher, logger *slog.Logger) *SoftwareService {
	return &SoftwareService{
		repo:      repo,
		scheduler: scheduler,
		events:    newEventEmitter(publisher, logger),
	}
}

func (s *SoftwareService) Get(ctx context.Context, id int64) (domain.Software, error) {
	return s.repo.Get(ctx, id)
}

func (s *SoftwareService) List(ctx context.Context) ([]domain.Software, error) {
	return s.repo.List(ctx)
}

func (s *SoftwareService) Create(ctx context.Context, name string) (domain.Software, error) {
	if err := domain.ValidateName(name); err != nil {
		return domain.Software{}, err
	}

	sw, err := s.repo.Create(ctx, domain.Software{
		Name:    name,
		Version: version.Initial,
		Status:  domain.StatusCreated,
	})
	if err != nil {
		return domain.Software{}, err
	}

	s.events.emit(ctx, domain.EventSoftwareCreated, sw.ID, softwarePayload(sw))
	return sw, nil
}

func (s *SoftwareService) Delete(ctx context.Context, id int64) (domain.Software, error) {
	sw, err := s.repo.Delete(ctx, id)
	if err != nil {
		return domain.Software{}, err
	}

	s.events.emit(ctx, domain.EventSoftwareDeleted, sw.ID, softwarePayload(sw))
	return sw, nil
}

// RequestActivate schedules a move to active and returns the record as it is
// now. Records that are already active are returned without scheduling.
func (s *SoftwareService) RequestActivate(ctx context.Context, id int64) (domain.Software, error) {
	return s.requestTransition(ctx, id, domain.StatusActive)
}

// RequestDownload is RequestActivate for the downloaded status.
func (s *SoftwareService) RequestDownload(ctx context.Context, id int64) (domain.Software, error) {
	return s.requestTransition(ctx, id, domain.StatusDownloaded)
}

func (s *SoftwareService) requestTransition(ctx context.Context, id int64, target domain.Status) (domain.Software, error) {
	sw, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Software{}, err
	}
	if sw.Status == target {
		return sw, nil
	}

	t, err := s.scheduler.Schedule(sw.ID, target)
	if err != nil {
		return domain.Software{}, fmt.Errorf("schedule %s transition: %w", target, err)
	}

	s.events.emit(ctx, domain.EventTransitionScheduled, sw.ID, map[string]any{
		"transition_id": t.ID,
		"target":        t.Target,
		"due_at":        t.DueAt,
	})
	return sw, nil
}

// UpdateVersion replaces the version when candidate is strictly newer and
// resets status to created. The comparison and the write share one
// transaction.
func (s *SoftwareService) UpdateVersion(ctx context.Context, id int64, candidate string) (domain.Software, error) {
	var previous string
	sw, err := s.repo.Mutate(ctx, id, func(sw *domain.Software) error {
		if _, err := version.Parse(candidate); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidVersionFormat, err)
		}
		newer, err := version.IsNewer(sw.Version, candidate)
		if err != nil {
			return fmt.Errorf("compare stored version %q: %w", sw.Version, err)
		}
		if !newer {
			return fmt.Errorf("%w: %s is not newer than %s", domain.ErrVersionConflict, candidate, sw.Version)
		}

		previous = sw.Version
		sw.Version = candidate
		sw.Status = domain.StatusCreated
		return nil
	})
	if err != nil {
		return domain.Software{}, err
	}

	s.events.emit(ctx, domain.EventSoftwareVersionUpdated, sw.ID, map[string]any{
		"previous_version": previous,
		"software":         softwarePayload(sw),
	})
	return sw, nil
}

// Update overwrites the fields present in patch without validation. It is
// not reachable over HTTP.
func (s *SoftwareService) Update(ctx context.Context, id int64, patch domain.SoftwarePatch) (domain.Software, error) {
	return s.repo.Mutate(ctx, id, func(sw *domain.Software) error {
		patch.Apply(sw)
		return nil
	})
}

// SetStatus writes status and nothing else.
func (s *SoftwareService) SetStatus(ctx context.Context, id int64, status domain.Status) (domain.Software, error) {
	if !status.Valid() {
		return domain.Software{}, domain.ErrInvalidInput
	}

	var previous domain.Status
	sw, err := s.repo.Mutate(ctx, id, func(sw *domain.Software) error {
		previous = sw.Status
		sw.Status = status
		return nil
	})
	if err != nil {
		return domain.Software{}, err
	}

	if previous != status {
		s.events.emit(ctx, domain.EventSoftwareStatusChanged, sw.ID, map[string]any{
			"previous_status": previous,
			"software":        softwarePayload(sw),
		})
	}
	return sw, nil
}

// ApplyTransition lets the scheduler fire transitions through SetStatus.
func (s *SoftwareService) ApplyTransition(ctx context.Context, t domain.Transition) error {
	_, err := s.SetStatus(ctx, t.SoftwareID, t.Target)
	return err
}

func softwarePayload(sw domain.Software) map[string]any {
	return map[string]any{
		"id":      sw.ID,
		"name":    sw.Name,
		"version": sw.Version,
		"status":  sw.Status,
	}
}
