package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	keyAlphabet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultAPIKeyLength = 16
	maxIssueAttempts    = 5
)

type AuthService struct {
	repo      ports.APIKeyRepository
	keyLength int
}

func NewAuthService(repo ports.APIKeyRepository, keyLength int) *AuthService {
	if keyLength <= 0 {
		keyLength = DefaultAPIKeyLength
	}
	return &AuthService{repo: repo, keyLength: keyLength}
}

// Issue generates and stores a new activated key. The repository reports
// domain.ErrDuplicateKey on a duplicate, in which case a fresh key is drawn.
func (s *AuthService) Issue(ctx context.Context) (domain.APIKey, error) {
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := GenerateKey(s.keyLength)
		if err != nil {
			return domain.APIKey{}, err
		}
		key, err := s.repo.Create(ctx, domain.APIKey{Key: token, Activated: true})
		if errors.Is(err, domain.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return domain.APIKey{}, err
		}
		return key, nil
	}
	return domain.APIKey{}, fmt.Errorf("issue api key: %w after %d attempts", domain.ErrDuplicateKey, maxIssueAttempts)
}

func (s *AuthService) Find(ctx context.Context, key string) (domain.APIKey, error) {
	if strings.TrimSpace(key) == "" {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return s.repo.Find(ctx, key)
}

func (s *AuthService) List(ctx context.Context) ([]domain.APIKey, error) {
	return s.repo.List(ctx)
}

func (s *AuthService) SetActivated(ctx context.Context, key string, activated bool) (domain.APIKey, error) {
	if strings.TrimSpace(key) == "" {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return s.repo.SetActivated(ctx, key, activated)
}

func (s *AuthService) Delete(ctx context.Context, key string) (domain.APIKey, error) {
	if strings.TrimSpace(key) == "" {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return s.repo.Delete(ctx, key)
}

// IsAuthorized reports whether key exists and is activated. Storage errors
// are returned and never authorize.
func (s *AuthService) IsAuthorized(ctx context.Context, key string) (bool, error) {
	_, err := s.Authenticate(ctx, key)
	if errors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	apiKey, err := s.repo.Find(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Activated {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// GenerateKey returns n characters drawn uniformly from A-Z and 0-9.
func GenerateKey(n int) (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate api key: %w", err)
		}
		b.WriteByte(keyAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
