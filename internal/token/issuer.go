// Package token mints short-lived publish credentials for the media
// channel. The JWT stands in for the vendor SDK's opaque token format;
// both sides of the contract only care that it is signed and expires.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RolePublisher = "publisher"
	DefaultTTL    = time.Hour
)

var (
	ErrNoSigningMaterial = errors.New("app id or certificate missing")
	ErrChannelEmpty      = errors.New("channel name empty")
	ErrUIDEmpty          = errors.New("uid empty")
)

// Credential is a signed proof of authorization to publish on one
// channel until ExpireAt.
type Credential struct {
	Token    string
	ExpireAt time.Time
}

type Issuer struct {
	appID string
	cert  []byte
	now   func() time.Time
}

// NewIssuer fails fast when signing material is absent; a server that
// cannot mint credentials should not start.
func NewIssuer(appID, appCertificate string) (*Issuer, error) {
	if appID == "" || appCertificate == "" {
		return nil, ErrNoSigningMaterial
	}
	return &Issuer{appID: appID, cert: []byte(appCertificate), now: time.Now}, nil
}

// Issue mints a publisher credential for uid on channel. Issuing twice
// for the same inputs yields independent, equally valid credentials.
func (i *Issuer) Issue(channel, uid string, ttl time.Duration) (Credential, error) {
	if channel == "" {
		return Credential{}, ErrChannelEmpty
	}
	if uid == "" {
		return Credential{}, ErrUIDEmpty
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := i.now()
	expireAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"iss":     i.appID,
		"jti":     uuid.NewString(),
		"channel": channel,
		"uid":     uid,
		"role":    RolePublisher,
		"iat":     now.Unix(),
		"exp":     expireAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cert)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: signed, ExpireAt: expireAt}, nil
}
