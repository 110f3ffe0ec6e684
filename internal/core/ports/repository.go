package ports

import (
	"context"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
)

type SoftwareRepository interface {
	Create(ctx context.Context, sw domain.Software) (domain.Software, error)
	Get(ctx context.Context, id int64) (domain.Software, error)
	List(ctx context.Context) ([]domain.Software, error)
	Delete(ctx context.Context, id int64) (domain.Software, error)
	// Mutate loads the record, applies fn and persists the result inside a
	// single write transaction. A non-nil error from fn aborts the write.
	Mutate(ctx context.Context, id int64, fn func(sw *domain.Software) error) (domain.Software, error)
}
