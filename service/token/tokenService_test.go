package tokensvc_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/repository/memory"
	tokensvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/token"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newService(t *testing.T) (tokensvc.Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	st := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return tokensvc.New(st.Tokens(), tokensvc.Config{TTL: time.Hour, Salt: "pepper"}, log, c.Now), c
}

func TestIssue_ReturnsSamePendingToken(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	a, err := s.Issue(ctx, 1, 10, model.PurposeIssue)
	require.NoError(t, err)
	b, err := s.Issue(ctx, 1, 10, model.PurposeIssue)
	require.NoError(t, err)

	require.Equal(t, a.ID, b.ID)
	require.Equal(t, a.TokenValue, b.TokenValue)
	require.Len(t, a.TokenValue, 64)

	other, err := s.Issue(ctx, 1, 10, model.PurposeReturn)
	require.NoError(t, err)
	require.NotEqual(t, a.TokenValue, other.TokenValue)
}

func TestIssue_BadPurpose(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Issue(context.Background(), 1, 10, model.TokenPurpose("borrow"))
	require.Equal(t, apperr.ErrBadInput, apperr.Code(err))
}

func TestIssue_MintsFreshAfterExpiry(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	old, err := s.Issue(ctx, 1, 10, model.PurposeIssue)
	require.NoError(t, err)

	c.Advance(2 * time.Hour)
	_, err = s.Validate(ctx, old.TokenValue)
	require.Equal(t, apperr.ErrInvalidToken, apperr.Code(err))

	fresh, err := s.Issue(ctx, 1, 10, model.PurposeIssue)
	require.NoError(t, err)
	require.NotEqual(t, old.TokenValue, fresh.TokenValue)

	// the old one stays dead
	_, err = s.Consume(ctx, old.TokenValue, 99)
	require.Equal(t, apperr.ErrInvalidToken, apperr.Code(err))
	_, err = s.Consume(ctx, fresh.TokenValue, 99)
	require.NoError(t, err)
}

func TestValidate_DoesNotMutate(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	tok, err := s.Issue(ctx, 3, 10, model.PurposeReturn)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := s.Validate(ctx, tok.TokenValue)
		require.NoError(t, err)
		require.Equal(t, model.TokenPending, got.Status)
	}

	_, err = s.Validate(ctx, "deadbeef")
	require.Equal(t, apperr.ErrInvalidToken, apperr.Code(err))
}

func TestConsume_OnlyOnce(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	tok, err := s.Issue(ctx, 5, 10, model.PurposeIssue)
	require.NoError(t, err)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(by int64) {
			defer wg.Done()
			if _, err := s.Consume(ctx, tok.TokenValue, by); err == nil {
				wins.Add(1)
			} else {
				assert.Equal(t, apperr.ErrInvalidToken, apperr.Code(err))
			}
		}(int64(i + 1))
	}
	wg.Wait()
	require.Equal(t, int64(1), wins.Load())

	_, err = s.Consume(ctx, tok.TokenValue, 1)
	require.Equal(t, apperr.ErrInvalidToken, apperr.Code(err))
}

func TestIssue_ConcurrentSinglePending(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	values := make(chan string, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.Issue(ctx, 8, 10, model.PurposeIssue)
			if assert.NoError(t, err) {
				values <- tok.TokenValue
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := map[string]bool{}
	for v := range values {
		seen[v] = true
	}
	require.Len(t, seen, 1)
}

func TestRenderPNG(t *testing.T) {
	s, _ := newService(t)
	tok, err := s.Issue(context.Background(), 1, 1, model.PurposeIssue)
	require.NoError(t, err)

	png, err := s.RenderPNG(tok, 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
