// Package accesscode issues and validates the single-use codes that let a partner open
// their assigned questionnaire without an account.
package accesscode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/repositories"
)

// Alphabet omits characters that are easily misread: O, 0, I, 1 and L.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	MinLength = 8
	MaxLength = 12

	maxIssueAttempts = 5
)

var (
	ErrNotFound    = errors.New("access code not found")
	ErrExpired     = errors.New("access code has expired")
	ErrAlreadyUsed = errors.New("access code has already been used")
)

// Repository is the persistence used by Store.
type Repository interface {
	Create(ctx context.Context, code *models.AccessCode) error
	GetByCode(ctx context.Context, code string) (*models.AccessCode, error)
	MarkUsed(ctx context.Context, code string, at time.Time) (bool, error)
}

// Generate returns a random code of the given length drawn from Alphabet.
func Generate(length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("access code length must be between %d and %d, got %d", MinLength, MaxLength, length)
	}
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize trims whitespace and uppercases a code as typed by a partner. It does not
// reject characters outside Alphabet; codes issued by older systems remain valid.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Store implements issuance, validation and the single-use transition.
type Store struct {
	repo   Repository
	length int
	now    func() time.Time
}

// NewStore creates a Store that generates codes of the given length.
func NewStore(repo Repository, length int) *Store {
	return &Store{repo: repo, length: length, now: time.Now}
}

// Issue creates a fresh code for an assignment, retrying on the rare collision.
func (s *Store) Issue(ctx context.Context, partnerID, assignmentID string, ttl time.Duration) (*models.AccessCode, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("access code ttl must be positive")
	}
	now := s.now()
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		code, err := Generate(s.length)
		if err != nil {
			return nil, err
		}
		ac := &models.AccessCode{
			Code:         code,
			PartnerID:    partnerID,
			AssignmentID: assignmentID,
			ExpiresAt:    now.Add(ttl),
			CreatedAt:    now,
		}
		err = s.repo.Create(ctx, ac)
		if err == nil {
			return ac, nil
		}
		if !repositories.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to store access code: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to generate a unique access code after %d attempts", maxIssueAttempts)
}

// Validate looks up a code and checks it can still be used. A used code reports
// ErrAlreadyUsed even when it has also expired.
func (s *Store) Validate(ctx context.Context, code string) (*models.AccessCode, error) {
	ac, err := s.repo.GetByCode(ctx, Normalize(code))
	if err != nil {
		return nil, fmt.Errorf("failed to look up access code: %w", err)
	}
	if err := s.classify(ac); err != nil {
		return nil, err
	}
	return ac, nil
}

func (s *Store) classify(ac *models.AccessCode) error {
	switch {
	case ac == nil:
		return ErrNotFound
	case ac.Used:
		return ErrAlreadyUsed
	case ac.IsExpired(s.now()):
		return ErrExpired
	}
	return nil
}

// MarkUsed consumes a code. Among concurrent callers exactly one succeeds; the others
// receive ErrAlreadyUsed.
func (s *Store) MarkUsed(ctx context.Context, code string) error {
	code = Normalize(code)
	ok, err := s.repo.MarkUsed(ctx, code, s.now())
	if err != nil {
		return fmt.Errorf("failed to mark access code used: %w", err)
	}
	if ok {
		return nil
	}

	ac, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to look up access code: %w", err)
	}
	if err := s.classify(ac); err != nil {
		return err
	}
	// Row looked valid on re-read but the update lost; another caller won.
	return ErrAlreadyUsed
}
