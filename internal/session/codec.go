package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// MinSecretBytes is the shortest accepted signing secret.
const MinSecretBytes = 32

const issuer = "linnemanlabs-docs"

// ErrInvalid is returned by Decode for tampered, expired or malformed cookies.
var ErrInvalid = errors.New("invalid session")

type claims struct {
	Values map[string]string `json:"vals,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session cookies.
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) < MinSecretBytes {
		return nil, xerrors.Newf("session secret too short (%d bytes, need %d)", len(secret), MinSecretBytes)
	}
	if ttl <= 0 {
		return nil, xerrors.Newf("session ttl must be positive (got %s)", ttl)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Codec{key: key, ttl: ttl, now: time.Now}, nil
}

// TTL is how long an encoded session stays valid.
func (c *Codec) TTL() time.Duration { return c.ttl }

func (c *Codec) Encode(s *Session) (string, error) {
	now := c.now()
	cl := claims{
		Values: s.snapshot(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.key)
	if err != nil {
		return "", xerrors.Wrap(err, "sign session")
	}
	return raw, nil
}

func (c *Codec) Decode(raw string) (*Session, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl,
		func(*jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, xerrors.Wrap(errors.Join(ErrInvalid, err), "decode session")
	}
	return restore(cl.ID, cl.Values), nil
}
