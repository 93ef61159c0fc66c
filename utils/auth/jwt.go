package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrInvalidClaims  = errors.New("invalid token claims")
	ErrWrongTokenType = errors.New("wrong token type")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	leeway            = 30 * time.Second
)

type JWTConfig struct {
	Secret        string
	Issuer        string
	Expiry        time.Duration
	RefreshExpiry time.Duration
}

// Principal is the user a token speaks for. TokenVersion must match the
// user's current version for the token to be honoured.
type Principal struct {
	UserID       uint   `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
}

type Claims struct {
	Principal
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token plus the bookkeeping needed to revoke it
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// JWTManager signs and verifies HS256 tokens
type JWTManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

func NewJWTManager(cfg JWTConfig) *JWTManager {
	if cfg.Expiry <= 0 {
		cfg.Expiry = defaultAccessTTL
	}
	if cfg.RefreshExpiry <= 0 {
		cfg.RefreshExpiry = defaultRefreshTTL
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTManager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.Expiry,
		refreshTTL: cfg.RefreshExpiry,
		parser:     jwt.NewParser(opts...),
	}
}

func (j *JWTManager) IssueAccess(p Principal) (IssuedToken, error) {
	return j.sign(p, TokenTypeAccess, j.accessTTL)
}

func (j *JWTManager) IssueRefresh(p Principal) (IssuedToken, error) {
	return j.sign(p, TokenTypeRefresh, j.refreshTTL)
}

func (j *JWTManager) sign(p Principal, kind string, ttl time.Duration) (IssuedToken, error) {
	now := time.Now()
	out := IssuedToken{JTI: uuid.NewString(), ExpiresAt: now.Add(ttl)}

	claims := Claims{
		Principal: p,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        out.JTI,
			Issuer:    j.issuer,
			Subject:   strconv.FormatUint(uint64(p.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(out.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	out.Token = signed
	return out, nil
}

// Parse verifies signature, algorithm, expiry and issuer. It accepts both
// token types; callers that need one kind check TokenType or use ParseRefresh.
func (j *JWTManager) Parse(raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := j.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case !token.Valid:
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

func (j *JWTManager) ParseRefresh(raw string) (*Claims, error) {
	claims, err := j.Parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// AccessTTL is the lifetime of newly issued access tokens
func (j *JWTManager) AccessTTL() time.Duration { return j.accessTTL }
