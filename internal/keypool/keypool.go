// Package keypool распределяет запросы по набору API-ключей с дневной квотой.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrExhausted = errors.New("no API keys available")

const (
	DefaultCooldown         = 24 * time.Hour
	DefaultRecoveryInterval = time.Hour

	maskPrefixLen = 6
	shortKeyMask  = "***"
)

// Credential - API-ключ. String() всегда отдает маску, полное значение
// доступно только явным string(c).
type Credential string

func (c Credential) String() string {
	return Mask(string(c))
}

// Mask оставляет первые maskPrefixLen символов. Ключ не длиннее префикса
// целиком заменяется на shortKeyMask.
func Mask(key string) string {
	if len(key) <= maskPrefixLen {
		return shortKeyMask
	}
	return key[:maskPrefixLen] + "..."
}

type Config struct {
	Cooldown         time.Duration
	RecoveryInterval time.Duration
	Now              func() time.Time
}

type Stats struct {
	Total     int            `json:"total"`
	Available int            `json:"available"`
	Limited   int            `json:"limited"`
	Usage     map[string]int `json:"usage"`
}

// Pool хранит ключи в порядке добавления. Ключ находится либо в доступных,
// либо в limited, но не в обоих сразу.
type Pool struct {
	mu       sync.Mutex
	keys     []string
	usage    map[string]int
	limited  map[string]time.Time
	cooldown time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func New(keys []string, cfg Config, logger *zap.Logger) *Pool {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = DefaultRecoveryInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		usage:    make(map[string]int, len(keys)),
		limited:  make(map[string]time.Time),
		cooldown: cfg.Cooldown,
		interval: cfg.RecoveryInterval,
		now:      cfg.Now,
		logger:   logger,
	}

	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := p.usage[k]; dup {
			continue
		}
		p.keys = append(p.keys, k)
		p.usage[k] = 0
	}

	return p
}

// Acquire возвращает доступный ключ с минимальным числом использований.
// Если доступных нет - сначала пробует восстановить ключи после cooldown.
func (p *Pool) Acquire() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.pickLocked()
	if !ok {
		if p.recoverLocked() == 0 {
			return "", ErrExhausted
		}
		key, ok = p.pickLocked()
		if !ok {
			return "", ErrExhausted
		}
	}

	p.usage[key]++
	return Credential(key), nil
}

func (p *Pool) pickLocked() (string, bool) {
	best := ""
	bestUsage := 0
	found := false
	for _, k := range p.keys {
		if _, limited := p.limited[k]; limited {
			continue
		}
		if !found || p.usage[k] < bestUsage {
			best, bestUsage, found = k, p.usage[k], true
		}
	}
	return best, found
}

// MarkLimited переносит ключ в limited. Повторный вызов и неизвестный ключ - no-op.
func (p *Pool) MarkLimited(c Credential) {
	key := string(c)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.usage[key]; !known {
		return
	}
	if _, already := p.limited[key]; already {
		return
	}

	p.limited[key] = p.now()
	p.logger.Warn("api key reached quota limit",
		zap.Stringer("key", c),
		zap.Int("available", len(p.keys)-len(p.limited)),
	)
}

// Recover возвращает в оборот ключи, у которых истек cooldown, и сбрасывает их счетчики.
func (p *Pool) Recover() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recoverLocked()
}

func (p *Pool) recoverLocked() int {
	now := p.now()
	recovered := 0
	for key, since := range p.limited {
		if now.Sub(since) < p.cooldown {
			continue
		}
		delete(p.limited, key)
		p.usage[key] = 0
		recovered++
		p.logger.Info("api key recovered",
			zap.Stringer("key", Credential(key)),
			zap.Duration("limited_for", now.Sub(since)),
		)
	}
	return recovered
}

func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) - len(p.limited)
}

func (p *Pool) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Total:     len(p.keys),
		Available: len(p.keys) - len(p.limited),
		Limited:   len(p.limited),
		Usage:     make(map[string]int, len(p.keys)),
	}
	for i, k := range p.keys {
		name := Mask(k)
		if _, clash := st.Usage[name]; clash {
			name = fmt.Sprintf("%s#%d", name, i+1)
		}
		st.Usage[name] = p.usage[k]
	}
	return st
}

// Run периодически вызывает Recover до отмены ctx.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Recover(); n > 0 {
				p.logger.Info("recovery sweep finished", zap.Int("recovered", n))
			}
		}
	}
}
