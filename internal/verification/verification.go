// Package verification issues and checks the six-digit email codes that complete
// access-code sign-in. Only bcrypt hashes are stored and only the newest code for an
// access code is accepted.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/notify"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/telemetry"
	"golang.org/x/crypto/bcrypt"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

var (
	ErrInvalidCode     = errors.New("verification code is invalid or has expired")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrResendTooSoon   = errors.New("a verification code was sent recently")
	ErrNoEmail         = errors.New("partner has no email address on file")
)

// Repository is the persistence used by Issuer.
type Repository interface {
	Create(ctx context.Context, vc *models.VerificationCode) error
	Latest(ctx context.Context, accessCodeID string) (*models.VerificationCode, error)
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
}

// Options configures an Issuer.
type Options struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Recipient is who the code is sent to.
type Recipient struct {
	Email       string
	PartnerName string
	CompanyName string
}

// Issued describes a code that was just sent.
type Issued struct {
	EmailHint string
	ExpiresAt time.Time
}

// Issuer issues and verifies codes.
type Issuer struct {
	repo    Repository
	sender  notify.Sender
	limiter AttemptLimiter
	opts    Options
	now     func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(repo Repository, sender notify.Sender, limiter AttemptLimiter, opts Options) *Issuer {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Issuer{repo: repo, sender: sender, limiter: limiter, opts: opts, now: time.Now}
}

// Issue generates a new code for the access code, stores its hash and emails it.
// Earlier codes stay in the table but are superseded.
func (i *Issuer) Issue(ctx context.Context, ac *models.AccessCode, to Recipient) (*Issued, error) {
	if strings.TrimSpace(to.Email) == "" {
		return nil, ErrNoEmail
	}
	now := i.now()

	if i.opts.ResendCooldown > 0 {
		latest, err := i.repo.Latest(ctx, ac.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up previous verification code: %w", err)
		}
		if latest != nil && now.Sub(latest.CreatedAt) < i.opts.ResendCooldown {
			return nil, ErrResendTooSoon
		}
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), i.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash verification code: %w", err)
	}

	vc := &models.VerificationCode{
		AccessCodeID: ac.ID,
		Email:        to.Email,
		CodeHash:     string(hash),
		ExpiresAt:    now.Add(i.opts.CodeTTL),
		CreatedAt:    now,
	}
	if err := i.repo.Create(ctx, vc); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	res, err := i.sender.Send(ctx, notify.Message{
		To:         to.Email,
		TemplateID: notify.TemplateVerificationCode,
		Variables: map[string]string{
			"code":            code,
			"partner_name":    to.PartnerName,
			"company_name":    to.CompanyName,
			"expires_minutes": strconv.Itoa(int(i.opts.CodeTTL.Minutes())),
		},
	})
	if err != nil {
		telemetry.VerificationCodesSentTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to send verification code: %w", err)
	}
	telemetry.VerificationCodesSentTotal.WithLabelValues("sent").Inc()
	slog.InfoContext(ctx, "verification code sent", "access_code_id", ac.ID, "message_id", res.MessageID)

	return &Issued{EmailHint: MaskEmail(to.Email), ExpiresAt: vc.ExpiresAt}, nil
}

// Verify checks a submitted code against the newest code for the access code. Every
// call counts against the attempt limit; success consumes the code and resets it.
func (i *Issuer) Verify(ctx context.Context, ac *models.AccessCode, submitted string) error {
	allowed, err := i.limiter.Allow(ctx, ac.ID)
	if err != nil {
		return fmt.Errorf("failed to check verification attempts: %w", err)
	}
	if !allowed {
		return ErrTooManyAttempts
	}

	submitted = strings.TrimSpace(submitted)
	if !isCode(submitted) {
		return ErrInvalidCode
	}

	latest, err := i.repo.Latest(ctx, ac.ID)
	if err != nil {
		return fmt.Errorf("failed to look up verification code: %w", err)
	}
	now := i.now()
	if latest == nil || latest.ConsumedAt != nil || !now.Before(latest.ExpiresAt) {
		return ErrInvalidCode
	}
	if bcrypt.CompareHashAndPassword([]byte(latest.CodeHash), []byte(submitted)) != nil {
		return ErrInvalidCode
	}

	ok, err := i.repo.Consume(ctx, latest.ID, now)
	if err != nil {
		return fmt.Errorf("failed to consume verification code: %w", err)
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := i.limiter.Reset(ctx, ac.ID); err != nil {
		slog.WarnContext(ctx, "failed to reset verification attempts", "access_code_id", ac.ID, "error", err)
	}
	return nil
}

// GenerateCode returns a uniformly random six-digit code, zero padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func isCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MaskEmail hides most of the local part: "jane@acme.com" becomes "j***@acme.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
