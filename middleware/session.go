package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	SessionCookie = "qanda_session"
	SessionKey    = "session_id"
	sessionTTL    = 30 * 24 * time.Hour
)

// Session attaches a session id to every request. The id travels in a
// signed JWT cookie; a missing, tampered or expired token starts a new session.
func Session(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		sessionID, err := parseSessionToken(c, key)
		if err != nil {
			sessionID = uuid.NewString()
			token, err := signSessionToken(key, sessionID, time.Now())
			if err != nil {
				log.Printf("Failed to sign session token: %v", err)
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			setSessionCookie(c, token)
		}

		c.Set(SessionKey, sessionID)
		c.Next()
	}
}

// SessionID returns the id stored by Session, or "" when the middleware did not run.
func SessionID(c *gin.Context) string {
	return c.GetString(SessionKey)
}

func signSessionToken(key []byte, sessionID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func parseSessionToken(c *gin.Context, key []byte) (string, error) {
	raw, err := c.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	if _, err := uuid.Parse(claims.ID); err != nil {
		return "", errors.New("session token carries no session id")
	}
	return claims.ID, nil
}

func setSessionCookie(c *gin.Context, token string) {
	isHTTPS := c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}
