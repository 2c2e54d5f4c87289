package app

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ctxSubject is the gin context key holding the caller identity.
const ctxSubject = "auth_subject"

var errNoBearer = errors.New("authorization must be a Bearer token")

// tokenVerifier checks bearer tokens against an HMAC secret and a fixed set
// of static tokens.
type tokenVerifier struct {
	secret []byte
	static map[string]struct{}
	parser *jwt.Parser
}

func newTokenVerifier(secret string, staticTokens []string) *tokenVerifier {
	v := &tokenVerifier{
		static: make(map[string]struct{}, len(staticTokens)),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithLeeway(5*time.Second),
			jwt.WithExpirationRequired(),
		),
	}
	if secret = strings.TrimSpace(secret); secret != "" {
		v.secret = []byte(secret)
	}
	for _, t := range staticTokens {
		if t = strings.TrimSpace(t); t != "" {
			v.static[t] = struct{}{}
		}
	}
	return v
}

func (v *tokenVerifier) enabled() bool {
	return v.secret != nil || len(v.static) > 0
}

// verify returns the caller identity: the JWT subject, or "static" for a
// static token.
func (v *tokenVerifier) verify(token string) (string, bool) {
	if v.secret != nil {
		claims := jwt.RegisteredClaims{}
		_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
			return v.secret, nil
		})
		if err == nil {
			return claims.Subject, true
		}
	}
	if _, ok := v.static[token]; ok {
		return "static", true
	}
	return "", false
}

func bearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errNoBearer
	}
	return parts[1], nil
}

// AuthMiddleware accepts a Bearer token that is either an HMAC-signed JWT
// with an expiry or one of staticTokens. With neither configured every
// request passes.
func AuthMiddleware(jwtSecret string, staticTokens []string) gin.HandlerFunc {
	v := newTokenVerifier(jwtSecret, staticTokens)
	if !v.enabled() {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing authorization")
			return
		}
		token, err := bearerToken(header)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		subject, ok := v.verify(token)
		if !ok {
			abortUnauthorized(c, "invalid token")
			return
		}
		c.Set(ctxSubject, subject)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   msg,
		"code":    "UNAUTHORIZED",
	})
}
