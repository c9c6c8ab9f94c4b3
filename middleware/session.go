package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// SessionCookie carries the signed device session marker.
	SessionCookie = "vehicle_agreement_session"
	// TabIDHeader scopes flow state to one browser tab.
	TabIDHeader = "X-Tab-ID"
	// tabIDQuery is the fallback for EventSource, which cannot set headers.
	tabIDQuery = "tabId"
)

var tabIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewDeviceID returns a marker of the form ses_<base36 millis>_<random>.
func NewDeviceID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "ses_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + random
}

// IssueSessionToken signs a session marker for deviceID.
func IssueSessionToken(deviceID string, cfg *config.SessionConfig, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(time.Duration(cfg.ExpireDays) * 24 * time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// parseSessionToken returns the device id of a valid, unexpired marker.
func parseSessionToken(token string, cfg *config.SessionConfig) (string, bool) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || !strings.HasPrefix(claims.Subject, "ses_") {
		return "", false
	}
	return claims.Subject, true
}

func setSessionCookie(c *gin.Context, cfg *config.SessionConfig, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, value, maxAge, "/", "", cfg.SecureCookie, true)
}

// Session resolves the device id from the session cookie, issuing a fresh
// marker when it is absent, expired or forged.
func Session(cfg *config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var deviceID string
		if cookie, err := c.Cookie(SessionCookie); err == nil {
			deviceID, _ = parseSessionToken(cookie, cfg)
		}

		if deviceID == "" {
			deviceID = NewDeviceID(time.Now())
			token, expiresAt, err := IssueSessionToken(deviceID, cfg, time.Now())
			if err != nil {
				logger.Error(c.Request.Context(), "failed to sign session marker", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			setSessionCookie(c, cfg, token, int(time.Until(expiresAt).Seconds()))
			logger.Debug(c.Request.Context(), "issued session marker", "device_id", deviceID)
		}

		c.Set(string(logger.DeviceIDKey), deviceID)
		ctx := context.WithValue(c.Request.Context(), logger.DeviceIDKey, deviceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// TabScope requires a tab id for flow-scoped routes.
func TabScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.GetHeader(TabIDHeader)
		if tabID == "" {
			tabID = c.Query(tabIDQuery)
		}
		if !tabIDPattern.MatchString(tabID) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Tab-ID header is required"})
			return
		}

		c.Set(string(logger.TabIDKey), tabID)
		ctx := context.WithValue(c.Request.Context(), logger.TabIDKey, tabID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetDeviceID gets the device id from gin context
func GetDeviceID(c *gin.Context) string {
	return c.GetString(string(logger.DeviceIDKey))
}

// GetTabID gets the tab id from gin context
func GetTabID(c *gin.Context) string {
	return c.GetString(string(logger.TabIDKey))
}

// ClearDeviceSession expires the session cookie. The next request starts a
// new device.
func ClearDeviceSession(c *gin.Context, cfg *config.SessionConfig) {
	setSessionCookie(c, cfg, "", -1)
}
