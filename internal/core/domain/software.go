package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidVersionFormat = errors.New("invalid version format")
	ErrVersionConflict      = errors.New("version conflict")
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusDownloaded Status = "downloaded"
	StatusActive     Status = "active"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusDownloaded, StatusActive:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrInvalidInput
	}
	return s, nil
}

// Software is a tracked artifact. Status holds only the latest lifecycle
// value, so moving to downloaded hides a prior activation and vice versa.
type Software struct {
	ID      int64
	Name    string
	Version string
	Status  Status
}

// SoftwarePatch is a partial update. Nil fields are left untouched.
type SoftwarePatch struct {
	Name    *string
	Version *string
	Status  *Status
}

func (p SoftwarePatch) Apply(sw *Software) {
	if p.Name != nil {
		sw.Name = *p.Name
	}
	if p.Version != nil {
		sw.Version = *p.Version
	}
	if p.Status != nil {
		sw.Status = *p.Status
	}
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidInput
	}
	return nil
}
