package identity

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/queue"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

// OTP issues six-digit login codes by email.  Each request gets a fresh
// TOTP secret whose period equals the code lifetime; the secret lives in
// Redis under otp:<email> until it is used, expires, or too many wrong
// codes are tried.
type OTP struct {
	Users  repository.UserStore
	Redis  *redis.Client
	Events Publisher
	TTL    time.Duration
	Now    func() time.Time
}

const (
	otpIssuer      = "ollama-chat"
	otpMaxAttempts = 5
)

func (o OTP) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o OTP) opts() totp.ValidateOpts {
	period := uint(o.TTL / time.Second)
	if period == 0 {
		period = 600
	}
	return totp.ValidateOpts{Period: period, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
}

func secretKey(email string) string   { return "otp:" + email }
func attemptsKey(email string) string { return "otp:attempts:" + email }

// Request issues a code for email and publishes it for delivery.  Unknown
// addresses return ErrInvalidCredential; the HTTP layer hides that from
// the caller.
func (o OTP) Request(ctx context.Context, email string) (time.Time, error) {
	if o.Redis == nil {
		return time.Time{}, ErrUnavailable
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := o.Users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Time{}, ErrInvalidCredential
		}
		return time.Time{}, err
	}
	opts := o.opts()
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: email,
		Period:      opts.Period,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return time.Time{}, errors.Wrap(err, "generate otp secret")
	}
	now := o.now()
	code, err := totp.GenerateCodeCustom(key.Secret(), now, opts)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "generate otp code")
	}
	ttl := time.Duration(opts.Period) * time.Second
	pipe := o.Redis.TxPipeline()
	pipe.Set(ctx, secretKey(email), key.Secret(), ttl)
	pipe.Del(ctx, attemptsKey(email))
	if _, err := pipe.Exec(ctx); err != nil {
		return time.Time{}, errors.Wrap(err, "store otp secret")
	}
	expires := now.Add(ttl).UTC()
	if o.Events != nil {
		if err := o.Events.Publish(ctx, queue.OTPMailQueue, queue.OTPMailEvent{Email: email, Code: code, ExpiresAt: expires}); err != nil {
			return time.Time{}, errors.Wrap(err, "queue otp mail")
		}
	}
	return expires, nil
}

// Authenticate consumes the pending secret if c.Code matches it.
func (o OTP) Authenticate(ctx context.Context, c Credential) (model.Principal, error) {
	if o.Redis == nil {
		return model.Principal{}, ErrUnavailable
	}
	email := strings.ToLower(strings.TrimSpace(c.Email))
	code := strings.TrimSpace(c.Code)
	if email == "" || code == "" {
		return model.Principal{}, ErrInvalidCredential
	}
	secret, err := o.Redis.Get(ctx, secretKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Principal{}, ErrInvalidCredential
	}
	if err != nil {
		return model.Principal{}, errors.Wrap(err, "load otp secret")
	}
	ok, err := totp.ValidateCustom(code, secret, o.now(), o.opts())
	if err != nil || !ok {
		o.failedAttempt(ctx, email)
		return model.Principal{}, ErrInvalidCredential
	}
	// a concurrent verification may have consumed it first
	n, err := o.Redis.Del(ctx, secretKey(email)).Result()
	if err != nil {
		return model.Principal{}, errors.Wrap(err, "consume otp secret")
	}
	if n == 0 {
		return model.Principal{}, ErrInvalidCredential
	}
	o.Redis.Del(ctx, attemptsKey(email))
	u, err := o.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Principal{}, ErrInvalidCredential
	}
	if err != nil {
		return model.Principal{}, err
	}
	return login(ctx, o.Users, u)
}

func (o OTP) failedAttempt(ctx context.Context, email string) {
	n, err := o.Redis.Incr(ctx, attemptsKey(email)).Result()
	if err != nil {
		return
	}
	o.Redis.Expire(ctx, attemptsKey(email), time.Duration(o.opts().Period)*time.Second)
	if n >= otpMaxAttempts {
		o.Redis.Del(ctx, secretKey(email), attemptsKey(email))
	}
}
