// Package auth handles the moderator login: one shared password, and a
// signed cookie that identifies the moderator session afterwards.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const CookieName = "exposed_moderator"

var ErrInvalidPassword = errors.New("invalid password")

type claims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

type Manager struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
	log    *zap.Logger
}

// NewManager hashes the configured password once so request handling only
// ever compares against the hash.
func NewManager(password, secret string, ttl time.Duration, secureCookie bool, log *zap.Logger) (*Manager, error) {
	if password == "" || secret == "" {
		return nil, errors.New("auth: password and secret are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash moderator password: %w", err)
	}
	return &Manager{
		hash:   hash,
		secret: []byte(secret),
		ttl:    ttl,
		secure: secureCookie,
		now:    time.Now,
		log:    log.Named("auth"),
	}, nil
}

func (m *Manager) CheckPassword(password string) error {
	if password == "" {
		return ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword(m.hash, []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// Login checks password and, on success, sets a fresh session cookie.
func (m *Manager) Login(w http.ResponseWriter, password string) (string, error) {
	if err := m.CheckPassword(password); err != nil {
		m.log.Info("moderator login rejected")
		return "", err
	}
	sid := uuid.NewString()
	token, err := m.sign(sid)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  m.now().Add(m.ttl),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	m.log.Info("moderator logged in", zap.String("sid", sid))
	return sid, nil
}

func (m *Manager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) sign(sid string) (string, error) {
	now := m.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "moderator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	s, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return s, nil
}

// SessionID returns the moderator session of r, or "" when the cookie is
// missing, expired or forged.
func (m *Manager) SessionID(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	var cl claims
	_, err = jwt.ParseWithClaims(c.Value, &cl, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		m.log.Debug("rejecting moderator cookie", zap.Error(err))
		return ""
	}
	return cl.SID
}

type ctxKey struct{}

func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sid)
}

func SessionIDFrom(ctx context.Context) string {
	sid, _ := ctx.Value(ctxKey{}).(string)
	return sid
}
