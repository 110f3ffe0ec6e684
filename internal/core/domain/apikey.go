package domain

import (
	"errors"
	"time"
)

var ErrDuplicateKey = errors.New("api key already exists")

// APIKey is a client credential. Only activated keys pass the request gate.
type APIKey struct {
	Key       string
	Activated bool
	CreatedAt time.Time
}
