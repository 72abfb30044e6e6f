package tokensvc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	tokenrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/token"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"
)

const DefaultTTL = 24 * time.Hour

type Config struct {
	TTL  time.Duration
	Salt string
}

type Service interface {
	// Issue returns the live pending token for (rental, purpose) or mints one.
	Issue(ctx context.Context, rentalID, userID int64, purpose model.TokenPurpose) (*model.QRToken, error)
	// Validate is a read-only check.
	Validate(ctx context.Context, value string) (*model.QRToken, error)
	// Consume marks the token used; only one caller per token succeeds.
	Consume(ctx context.Context, value string, by int64) (*model.QRToken, error)
	RenderPNG(t *model.QRToken, size int) ([]byte, error)
}

type service struct {
	r   tokenrepo.Repo
	ttl time.Duration
	key [32]byte
	log *slog.Logger
	now func() time.Time
}

func New(r tokenrepo.Repo, cfg Config, log *slog.Logger, now func() time.Time) Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &service{
		r:   r,
		ttl: cfg.TTL,
		key: blake2b.Sum256([]byte(cfg.Salt)),
		log: log,
		now: now,
	}
}

func invalid() error { return apperr.New(apperr.ErrInvalidToken, "token is not valid") }

func (s *service) Issue(ctx context.Context, rentalID, userID int64, purpose model.TokenPurpose) (*model.QRToken, error) {
	if !purpose.Valid() {
		return nil, apperr.New(apperr.ErrBadInput, "unknown purpose %q", purpose)
	}

	// Two rounds: a lost insert race re-reads the winner.
	for attempt := 0; attempt < 2; attempt++ {
		now := s.now().UTC()
		cur, err := s.r.FindPending(ctx, rentalID, purpose)
		switch {
		case err == nil && now.Before(cur.ExpiresAt):
			return cur, nil
		case err == nil:
			if _, err := s.r.Expire(ctx, cur.ID, now); err != nil {
				return nil, err
			}
		case !apperr.Is(err, apperr.ErrNotFound):
			return nil, err
		}

		value, err := s.mint(rentalID, userID, purpose, now)
		if err != nil {
			return nil, err
		}
		t := &model.QRToken{
			RentalID:   rentalID,
			UserID:     userID,
			TokenValue: value,
			Purpose:    purpose,
			Status:     model.TokenPending,
			ExpiresAt:  now.Add(s.ttl),
			CreatedAt:  now,
		}
		err = s.r.Insert(ctx, t)
		if err == nil {
			s.log.Info("qr token issued", "rental_id", rentalID, "purpose", purpose, "expires_at", t.ExpiresAt)
			return t, nil
		}
		if !apperr.Is(err, apperr.ErrConflict) {
			return nil, err
		}
	}
	return nil, apperr.New(apperr.ErrInvariantBroken, "could not settle pending %s token for rental %d", purpose, rentalID)
}

// mint hashes rental, user, time and purpose under the salt key. The nonce
// keeps values unique when two mints share a timestamp.
func (s *service) mint(rentalID, userID int64, purpose model.TokenPurpose, now time.Time) (string, error) {
	h, err := blake2b.New256(s.key[:])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	fmt.Fprintf(h, "%d|%d|%d|%s|", rentalID, userID, now.UnixNano(), purpose)
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *service) Validate(ctx context.Context, value string) (*model.QRToken, error) {
	t, err := s.r.GetByValue(ctx, value)
	if apperr.Is(err, apperr.ErrNotFound) {
		return nil, invalid()
	}
	if err != nil {
		return nil, err
	}
	if t.Status != model.TokenPending || !s.now().Before(t.ExpiresAt) {
		return nil, invalid()
	}
	return t, nil
}

func (s *service) Consume(ctx context.Context, value string, by int64) (*model.QRToken, error) {
	now := s.now().UTC()
	t, err := s.r.Consume(ctx, value, by, now)
	if err == nil {
		s.log.Info("qr token consumed", "token_id", t.ID, "rental_id", t.RentalID, "purpose", t.Purpose, "by", by)
		return t, nil
	}
	if !apperr.Is(err, apperr.ErrInvalidToken) {
		return nil, err
	}

	// Settle an expired pending token so it is never revived.
	if cur, gerr := s.r.GetByValue(ctx, value); gerr == nil && cur.Status == model.TokenPending {
		if _, xerr := s.r.Expire(ctx, cur.ID, now); xerr != nil {
			s.log.Warn("expire token", "token_id", cur.ID, "err", xerr)
		}
	}
	s.log.Info("qr token rejected", "by", by)
	return nil, err
}

func (s *service) RenderPNG(t *model.QRToken, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(t.TokenValue, qrcode.Medium, size)
}
