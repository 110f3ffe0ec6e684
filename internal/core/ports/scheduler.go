package ports

import (
	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
)

// TransitionScheduler defers a status change. Schedule never blocks on the
// change itself.
type TransitionScheduler interface {
	Schedule(softwareID int64, target domain.Status) (domain.Transition, error)
}
