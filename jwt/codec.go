package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm used to sign access tokens.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with EdDSA over an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenTypeAccess is the only value accepted in the typ claim.
const TokenTypeAccess = "access"

var (
	// ErrInvalid is the parent of every verification failure.
	ErrInvalid = errors.New("invalid access token")
	// ErrMalformed reports a token that cannot be decoded or carries claims this codec does not accept.
	ErrMalformed = fmt.Errorf("%w: malformed", ErrInvalid)
	// ErrInvalidSignature reports a signature, algorithm or key id mismatch.
	ErrInvalidSignature = fmt.Errorf("%w: signature", ErrInvalid)
	// ErrExpired reports a well-formed, correctly signed token past its exp.
	ErrExpired = fmt.Errorf("%w: expired", ErrInvalid)
)

// Config holds codec settings. It is copied at construction.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the wall clock. Nil means time.Now.
	Now func() time.Time
}

// Subject is the identity stamped into a new access token.
type Subject struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// AccessClaims is the claim set carried by an access token.
type AccessClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	SID   string `json:"sid"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens. Key material is read-only after
// NewCodec returns, so a Codec is safe for concurrent use.
type Codec struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	verifyBy  map[string]interface{}
}

// NewCodec validates cfg and parses key material up front.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	c := &Codec{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.PrivateKey
		c.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		c.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			c.signKey = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			c.verifyKey = pub
		}
		if len(cfg.VerifyKeys) == 0 && c.verifyKey == nil {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) > 0 {
		c.verifyBy = make(map[string]interface{}, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			vk, err := c.keyBytesToVerifyKey(key)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			c.verifyBy[kid] = vk
		}
		if cfg.KeyID != "" {
			if _, ok := c.verifyBy[cfg.KeyID]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
	}

	return c, nil
}

// AccessTTL reports the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.config.AccessTTL
}

// Sign stamps iat, exp, iss, aud and a fresh jti onto s and returns the
// compact token together with the claims that were signed.
func (c *Codec) Sign(s Subject) (string, *AccessClaims, error) {
	if s.UserID == "" || s.SessionID == "" {
		return "", nil, errors.New("access token requires user and session id")
	}
	if c.signKey == nil {
		return "", nil, errors.New("codec has no signing key")
	}

	now := c.config.Now()
	claims := &AccessClaims{
		UID:   s.UserID,
		Email: s.Email,
		Role:  s.Role,
		SID:   s.SessionID,
		Type:  TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	token := jwt.NewWithClaims(c.method, claims)
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}

	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm, registered claims and typ. On failure
// it returns exactly one of ErrMalformed, ErrInvalidSignature or ErrExpired
// and never returns claims.
func (c *Codec) Verify(tokenStr string) (*AccessClaims, error) {
	return c.verify(tokenStr, true)
}

// VerifyIgnoringExpiry performs every check Verify does except exp. It lets
// revocation paths resolve the session of a token that has already lapsed.
func (c *Codec) VerifyIgnoringExpiry(tokenStr string) (*AccessClaims, error) {
	return c.verify(tokenStr, false)
}

func (c *Codec) verify(tokenStr string, checkExpiry bool) (*AccessClaims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.config.Now),
		jwt.WithIssuedAt(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}
	if checkExpiry {
		options = append(options, jwt.WithExpirationRequired())
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, c.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if !checkExpiry {
		// Claims validation was skipped wholesale; re-apply everything but exp.
		if c.config.Issuer != "" && claims.Issuer != c.config.Issuer {
			return nil, ErrMalformed
		}
		if c.config.Audience != "" && !containsAudience(claims.Audience, c.config.Audience) {
			return nil, ErrMalformed
		}
		if claims.ExpiresAt == nil {
			return nil, ErrMalformed
		}
	}
	if claims.Type != TokenTypeAccess || claims.UID == "" || claims.SID == "" {
		return nil, ErrMalformed
	}
	if claims.IssuedAt != nil {
		maxAllowed := c.config.Now().Add(c.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, ErrMalformed
		}
	}

	return claims, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != c.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(c.verifyBy) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := c.verifyBy[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}

	if c.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != c.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return c.verifyKey, nil
}

func (c *Codec) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		if len(key) == 0 {
			return nil, errors.New("empty hs256 key")
		}
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

// classify maps parser errors onto the codec's three failure classes. The
// parser verifies the signature before validating claims, so ErrExpired is
// only ever reported for authentic tokens.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
