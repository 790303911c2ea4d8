package sandbox

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 24 * time.Hour

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const claimsKey = "sandbox_claims"

// Claims carried by sandbox tokens.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// tokens signs and validates HS256 access tokens.
type tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func (t *tokens) issue(username string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(TokenTTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (t *tokens) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// requireToken rejects requests without a valid bearer token.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		claims, err := s.tokens.validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.fail(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	var user User
	err := s.db.WithContext(c.Request.Context()).Where("username = ?", req.Username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", ErrInvalidCredentials.Error())
		return
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", ErrInvalidCredentials.Error())
		return
	}

	token, expires, err := s.tokens.issue(user.Username)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, loginResponse{Token: token, TokenType: "Bearer", ExpiresAt: expires})
}
