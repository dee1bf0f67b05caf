package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

var (
	ErrInvalidToken    = fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	ErrInvalidIssuer   = fmt.Errorf("%w: invalid issuer", domain.ErrUnauthenticated)
	ErrInvalidAudience = fmt.Errorf("%w: invalid audience", domain.ErrUnauthenticated)
	ErrTokenExpired    = fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
	ErrInvalidSubject  = fmt.Errorf("%w: invalid subject", domain.ErrUnauthenticated)
)

// AccessClaims: токен выпускает внешний auth-service, мы только проверяем.
type AccessClaims struct {
	jwt.StandardClaims
	Role string `json:"role,omitempty"`
}

// Verifier checks RS256 access tokens and turns them into an Identity.
type Verifier struct {
	public    *rsa.PublicKey
	issuer    string
	audience  string
	clockSkew time.Duration
	now       func() time.Time
}

func NewVerifier(public *rsa.PublicKey, issuer, audience string, clockSkew time.Duration) *Verifier {
	return &Verifier{
		public:    public,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

func (v *Verifier) ParseAndValidate(tokenStr string) (domain.Identity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return domain.Identity{}, ErrInvalidToken
	}

	claims := &AccessClaims{}
	// exp/nbf проверяем сами с допуском clockSkew
	parser := &jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, ErrInvalidToken
		}
		return v.public, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return domain.Identity{}, ErrInvalidIssuer
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return domain.Identity{}, ErrInvalidAudience
	}

	now := v.now()
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-v.clockSkew)) {
		return domain.Identity{}, ErrTokenExpired
	}
	if claims.ExpiresAt == 0 || now.After(time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)) {
		return domain.Identity{}, ErrTokenExpired
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return domain.Identity{}, ErrInvalidSubject
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		role = domain.RoleClient
	}
	return domain.Identity{UserID: sub, Role: role}, nil
}

// Signer issues tokens. The service itself only verifies; cmd/devtoken and
// tests sign.
type Signer struct {
	private  *rsa.PrivateKey
	issuer   string
	audience string
	ttl      time.Duration
}

func NewSigner(private *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{private: private, issuer: issuer, audience: audience, ttl: ttl}
}

func (s *Signer) Sign(id domain.Identity, now time.Time) (string, error) {
	if id.IsZero() {
		return "", ErrInvalidSubject
	}
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   id.UserID,
			Issuer:    s.issuer,
			Audience:  s.audience,
			IssuedAt:  now.Unix(),
			NotBefore: now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Role: id.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.private)
}

func LoadRSAPrivateKeyFromPEM(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not RSA private key")
	}
	return pk, nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}

// BearerToken extracts the token from "Authorization: Bearer <t>".
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
