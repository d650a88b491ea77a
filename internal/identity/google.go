package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

// GoogleTokenInfoURL verifies ID tokens server side.
const GoogleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// Google accepts a Google ID token whose audience is ClientID.  First sign
// in creates a passwordless account.
type Google struct {
	Users    repository.UserStore
	ClientID string
	Endpoint string // defaults to GoogleTokenInfoURL
	HTTP     *http.Client
}

type tokenInfo struct {
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"` // "true" or true depending on endpoint
	Name          string `json:"name"`
}

func (t tokenInfo) verified() bool {
	switch v := t.EmailVerified.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (g Google) Authenticate(ctx context.Context, c Credential) (model.Principal, error) {
	if g.ClientID == "" {
		return model.Principal{}, ErrUnavailable
	}
	if strings.TrimSpace(c.IDToken) == "" {
		return model.Principal{}, ErrInvalidCredential
	}
	info, err := g.verify(ctx, c.IDToken)
	if err != nil {
		return model.Principal{}, err
	}
	if info.Aud != g.ClientID || info.Email == "" {
		return model.Principal{}, ErrInvalidCredential
	}
	if !info.verified() {
		return model.Principal{}, ErrNotVerified
	}
	email := strings.ToLower(info.Email)
	u, err := g.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = g.createUser(ctx, email)
	}
	if err != nil {
		return model.Principal{}, err
	}
	return login(ctx, g.Users, u)
}

func (g Google) verify(ctx context.Context, idToken string) (tokenInfo, error) {
	endpoint := g.Endpoint
	if endpoint == "" {
		endpoint = GoogleTokenInfoURL
	}
	client := g.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?id_token="+url.QueryEscape(idToken), nil)
	if err != nil {
		return tokenInfo{}, errors.Wrap(err, "build tokeninfo request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return tokenInfo{}, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tokenInfo{}, ErrInvalidCredential
	}
	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return tokenInfo{}, ErrInvalidCredential
	}
	return info, nil
}

var handleChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// createUser derives a handle from the email local part, adding a numeric
// suffix while it collides.
func (g Google) createUser(ctx context.Context, email string) (model.User, error) {
	base := handleChars.ReplaceAllString(strings.SplitN(email, "@", 2)[0], "")
	if len(base) < 3 {
		base = "user" + base
	}
	if len(base) > 40 {
		base = base[:40]
	}
	name := base
	for i := 2; i < 20; i++ {
		u, err := g.Users.Create(ctx, name, email, "", model.RoleUser)
		if !errors.Is(err, repository.ErrUsernameExists) {
			return u, err
		}
		name = base + strconv.Itoa(i)
	}
	return model.User{}, repository.ErrUsernameExists
}
