// verification_code_purger.go implements the VerificationCodePurger background job,
// which periodically deletes email one-time codes that expired or were consumed
// before the retention window. Only the newest code per access code is ever
// accepted, so older rows only matter for short-term troubleshooting.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// StaleCodeDeleter removes verification codes that expired or were consumed before a cutoff.
type StaleCodeDeleter interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// VerificationCodePurger periodically deletes stale verification codes.
type VerificationCodePurger struct {
	repo      StaleCodeDeleter
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewVerificationCodePurger creates a purger. A non-positive retention defaults to
// 24 hours and a non-positive interval to 1 hour.
func NewVerificationCodePurger(repo StaleCodeDeleter, retention, interval time.Duration) *VerificationCodePurger {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &VerificationCodePurger{
		repo:      repo,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start runs a purge immediately and then on every interval. It returns when ctx is
// cancelled or Stop is called.
func (p *VerificationCodePurger) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Printf("Verification code purger started (interval: %v, retention: %v)", p.interval, p.retention)

	p.runPurge(ctx)

	for {
		select {
		case <-ticker.C:
			p.runPurge(ctx)
		case <-p.stopChan:
			log.Println("Verification code purger stopped")
			return
		case <-ctx.Done():
			log.Println("Verification code purger context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (p *VerificationCodePurger) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
}

// runPurge deletes one batch and returns the number of rows removed.
func (p *VerificationCodePurger) runPurge(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.DeleteStale(ctx, cutoff)
	if err != nil {
		log.Printf("Verification code purger: failed to delete stale codes: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("Verification code purger: removed %d stale code(s) older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n
}
