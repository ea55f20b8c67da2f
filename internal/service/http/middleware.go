package httpsvc

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/service/auth"
)

const (
	tokenCookie  = "token"
	principalKey = "vegshop.principal"
)

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(started).String(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

// authenticate принимает токен из Authorization: Bearer или из cookie token.
func (h *handler) authenticate(c *gin.Context) {
	raw := bearerToken(c.GetHeader("Authorization"))
	if raw == "" {
		if cookie, err := c.Cookie(tokenCookie); err == nil {
			raw = cookie
		}
	}
	if raw == "" {
		h.failKind(c, KindUnauthorized)
		return
	}

	principal, err := h.svc.Auth.Verify(raw)
	if err != nil {
		h.failKind(c, KindUnauthorized)
		return
	}
	c.Set(principalKey, principal)
	c.Next()
}

func (h *handler) requireAdmin(c *gin.Context) {
	if !principalFrom(c).IsAdmin() {
		h.failKind(c, KindForbidden)
		return
	}
	c.Next()
}

func principalFrom(c *gin.Context) auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Principal{}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
