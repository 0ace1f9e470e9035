// Package tokens mints one-time invitation tokens and renders them as join
// links, CSV exports and QR codes.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/store"
)

const (
	MinCount   = 1
	MaxCount   = 100
	DefaultTTL = 30 * 24 * time.Hour

	entropyBytes = 32
)

type Store interface {
	CreateTokens(ctx context.Context, tokens []store.Token) error
}

type Invite struct {
	Token     string    `json:"token"`
	URL       string    `json:"join_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Issuer struct {
	store   Store
	baseURL string
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewIssuer(st Store, baseURL string, ttl time.Duration, log *zap.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		store:   st,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
		log:     log.Named("tokens"),
	}
}

// ParseCount validates a raw count from a form or flag.
func ParseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < MinCount || n > MaxCount {
		return 0, apperr.Validation("count must be an integer between %d and %d", MinCount, MaxCount)
	}
	return n, nil
}

func (i *Issuer) Generate(ctx context.Context, count int) ([]Invite, error) {
	if count < MinCount || count > MaxCount {
		return nil, apperr.Validation("count must be an integer between %d and %d", MinCount, MaxCount)
	}

	now := i.now().UTC()
	rows := make([]store.Token, 0, count)
	invites := make([]Invite, 0, count)
	for range count {
		tok, err := newToken()
		if err != nil {
			return nil, err
		}
		rows = append(rows, store.Token{Token: tok, CreatedAt: now, ExpiresAt: now.Add(i.ttl)})
		invites = append(invites, Invite{Token: tok, URL: i.JoinURL(tok), ExpiresAt: now.Add(i.ttl)})
	}

	if err := i.store.CreateTokens(ctx, rows); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}
	i.log.Info("generated join tokens", zap.Int("count", count))
	return invites, nil
}

func (i *Issuer) JoinURL(token string) string {
	return i.baseURL + "/join?" + url.Values{"token": {token}}.Encode()
}

func newToken() (string, error) {
	b := make([]byte, entropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
