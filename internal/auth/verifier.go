// Package auth verifies logins against the Users tab and mints the signed
// session tokens that carry the resulting identity.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/clinic-crm/internal/metrics"
	"github.com/jmehdipour/clinic-crm/internal/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
)

const (
	MaxLoginLength    = 100
	MaxPasswordLength = 128
)

// UserSource is the part of a row store the verifier reads from.
type UserSource interface {
	FetchRows(ctx context.Context, dataset, tab string) ([]model.Row, error)
}

type VerifierOpts struct {
	Dataset string // spreadsheet holding the Users tab
	Tab     string
	Timeout time.Duration
	Logger  *zap.Logger
}

type Verifier struct {
	users UserSource
	opts  VerifierOpts
	log   *zap.Logger
}

func NewVerifier(users UserSource, opts VerifierOpts) *Verifier {
	if opts.Tab == "" {
		opts.Tab = model.TabUsers
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{users: users, opts: opts, log: log}
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// compareDummy burns one bcrypt comparison so unknown logins cost about as
// much as known ones.
func compareDummy(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("clinic-crm/unknown-login"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Verify returns the identity for login when password matches its stored hash.
// Every failure, including a backend error, is reported as ErrInvalidCredentials.
func (v *Verifier) Verify(ctx context.Context, login, password string) (*model.Identity, error) {
	login = strings.TrimSpace(login)
	if n := utf8.RuneCountInString(login); n == 0 || n > MaxLoginLength {
		metrics.AuthAttemptsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	if n := utf8.RuneCountInString(password); n == 0 || n > MaxPasswordLength {
		metrics.AuthAttemptsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	if v.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.Timeout)
		defer cancel()
	}
	rows, err := v.users.FetchRows(ctx, v.opts.Dataset, v.opts.Tab)
	if err != nil {
		v.log.Error("users lookup failed", zap.String("tab", v.opts.Tab), zap.Error(err))
		metrics.AuthAttemptsTotal.WithLabelValues("backend_error").Inc()
		return nil, ErrInvalidCredentials
	}

	var rec *model.UserRecord
	for _, r := range rows {
		if r.ID() == login {
			u := model.UserRecordFromRow(r)
			rec = &u
			break
		}
	}
	if rec == nil || rec.PasswordHash == "" {
		compareDummy(password)
		metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			v.log.Warn("unreadable password hash", zap.String("login", login), zap.Error(err))
		}
		metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	id := rec.Identity()
	return &id, nil
}

// HashPassword returns the bcrypt hash stored in column B of the Users tab.
func HashPassword(password string) (string, error) {
	if n := utf8.RuneCountInString(password); n == 0 || n > MaxPasswordLength {
		return "", errors.New("password must be 1-128 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
