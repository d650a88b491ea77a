package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/queue"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

type mailbox struct {
	mu   sync.Mutex
	sent []queue.OTPMailEvent
}

func (m *mailbox) Publish(_ context.Context, _ string, ev any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, ev.(queue.OTPMailEvent))
	return nil
}

func (m *mailbox) last(t *testing.T) queue.OTPMailEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func newUsers(t *testing.T) repository.UserStore {
	t.Helper()
	users := repository.NewMemory().Store().Users
	_, err := Register(context.Background(), users, bcrypt.MinCost, "alice", "Alice@Example.com", "secret1")
	require.NoError(t, err)
	return users
}

func TestRegisterValidation(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()
	var ie *InputError

	_, err := Register(ctx, users, bcrypt.MinCost, "al", "x@example.com", "secret1")
	assert.ErrorAs(t, err, &ie)
	_, err = Register(ctx, users, bcrypt.MinCost, "carol", "not-an-email", "secret1")
	assert.ErrorAs(t, err, &ie)
	_, err = Register(ctx, users, bcrypt.MinCost, "carol", "carol@example.com", "short")
	assert.ErrorAs(t, err, &ie)
	_, err = Register(ctx, users, bcrypt.MinCost, "alice2", "alice@example.com", "secret1")
	assert.ErrorIs(t, err, repository.ErrEmailExists)
}

func TestPasswordAuthenticate(t *testing.T) {
	users := newUsers(t)
	p := Password{Users: users}
	ctx := context.Background()

	pr, err := p.Authenticate(ctx, Credential{Kind: KindPassword, Email: " alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, pr.Role)
	u, err := users.GetByID(ctx, pr.UserID)
	require.NoError(t, err)
	assert.NotNil(t, u.LastLoginAt)

	_, err = p.Authenticate(ctx, Credential{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = p.Authenticate(ctx, Credential{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func newOTP(t *testing.T) (OTP, *mailbox, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	box := &mailbox{}
	return OTP{Users: newUsers(t), Redis: rdb, Events: box, TTL: 10 * time.Minute}, box, mr
}

func TestOTPRoundTrip(t *testing.T) {
	o, box, mr := newOTP(t)
	ctx := context.Background()

	exp, err := o.Request(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)
	assert.True(t, mr.Exists("otp:alice@example.com"))
	mail := box.last(t)
	assert.Equal(t, "alice@example.com", mail.Email)
	assert.Len(t, mail.Code, 6)

	pr, err := o.Authenticate(ctx, Credential{Kind: KindOTP, Email: "alice@example.com", Code: mail.Code})
	require.NoError(t, err)
	assert.NotZero(t, pr.UserID)

	_, err = o.Authenticate(ctx, Credential{Kind: KindOTP, Email: "alice@example.com", Code: mail.Code})
	assert.ErrorIs(t, err, ErrInvalidCredential, "codes are single use")
}

func TestOTPExpires(t *testing.T) {
	o, box, mr := newOTP(t)
	ctx := context.Background()
	_, err := o.Request(ctx, "alice@example.com")
	require.NoError(t, err)

	mr.FastForward(11 * time.Minute)
	_, err = o.Authenticate(ctx, Credential{Email: "alice@example.com", Code: box.last(t).Code})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestOTPLocksAfterWrongCodes(t *testing.T) {
	o, box, mr := newOTP(t)
	ctx := context.Background()
	_, err := o.Request(ctx, "alice@example.com")
	require.NoError(t, err)
	good := box.last(t).Code
	bad := "000000"
	if good == bad {
		bad = "111111"
	}
	for i := 0; i < otpMaxAttempts; i++ {
		_, err := o.Authenticate(ctx, Credential{Email: "alice@example.com", Code: bad})
		assert.ErrorIs(t, err, ErrInvalidCredential)
	}
	assert.False(t, mr.Exists("otp:alice@example.com"))
	_, err = o.Authenticate(ctx, Credential{Email: "alice@example.com", Code: good})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestOTPUnknownEmailAndNoRedis(t *testing.T) {
	o, box, _ := newOTP(t)
	_, err := o.Request(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Empty(t, box.sent)

	o.Redis = nil
	_, err = o.Request(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func googleServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("id_token"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleCreatesUserOnFirstSignIn(t *testing.T) {
	users := newUsers(t)
	srv := googleServer(t, `{"aud":"client-1","sub":"g1","email":"Alice.Smith@gmail.com","email_verified":"true"}`, http.StatusOK)
	g := Google{Users: users, ClientID: "client-1", Endpoint: srv.URL}
	ctx := context.Background()

	p1, err := g.Authenticate(ctx, Credential{Kind: KindGoogle, IDToken: "tok"})
	require.NoError(t, err)
	p2, err := g.Authenticate(ctx, Credential{Kind: KindGoogle, IDToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, p1.UserID, p2.UserID)

	u, err := users.GetByID(ctx, p1.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice.smith", u.Username)
	assert.Empty(t, u.PasswordHash)
}

func TestGoogleRejects(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()
	tests := []struct {
		name   string
		body   string
		status int
		want   error
	}{
		{"wrong audience", `{"aud":"other","email":"a@gmail.com","email_verified":true}`, http.StatusOK, ErrInvalidCredential},
		{"unverified", `{"aud":"client-1","email":"a@gmail.com","email_verified":"false"}`, http.StatusOK, ErrNotVerified},
		{"bad token", `{"error":"invalid_token"}`, http.StatusBadRequest, ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := googleServer(t, tt.body, tt.status)
			g := Google{Users: users, ClientID: "client-1", Endpoint: srv.URL}
			_, err := g.Authenticate(ctx, Credential{Kind: KindGoogle, IDToken: "tok"})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Google{Users: users}.Authenticate(ctx, Credential{IDToken: "tok"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChainDispatch(t *testing.T) {
	users := newUsers(t)
	chain := Chain{KindPassword: Password{Users: users}}
	_, err := chain.Authenticate(context.Background(), Credential{Kind: KindPassword, Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = chain.Authenticate(context.Background(), Credential{Kind: KindGoogle})
	assert.ErrorIs(t, err, ErrUnavailable)
}
