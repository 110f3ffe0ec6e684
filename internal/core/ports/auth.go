package ports

import (
	"context"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
)

type APIKeyRepository interface {
	Create(ctx context.Context, key domain.APIKey) (domain.APIKey, error)
	Find(ctx context.Context, key string) (domain.APIKey, error)
	List(ctx context.Context) ([]domain.APIKey, error)
	SetActivated(ctx context.Context, key string, activated bool) (domain.APIKey, error)
	Delete(ctx context.Context, key string) (domain.APIKey, error)
}
