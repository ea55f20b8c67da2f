package httpsvc

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/vegshop/internal/service/auth"
)

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failKind(c, KindInvalidRequest)
		return
	}

	user, token, err := h.svc.Auth.Register(c.Request.Context(), auth.RegisterInput{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Email:             req.Email,
		Password:          req.Password,
		Phone:             req.Phone,
		Address:           req.Address,
		City:              req.City,
		Pincode:           req.Pincode,
		AgreesToMarketing: req.AgreesToMarketing,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setTokenCookie(c, token)
	c.JSON(http.StatusCreated, authResponse{
		Success:   true,
		Message:   "User registered successfully",
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		User:      newUserView(user),
	})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failKind(c, KindInvalidRequest)
		return
	}

	user, token, err := h.svc.Auth.Login(c.Request.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setTokenCookie(c, token)
	c.JSON(http.StatusOK, authResponse{
		Success:   true,
		Message:   "Login successful",
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		User:      newUserView(user),
	})
}

func (h *handler) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(tokenCookie, "", -1, "/", "", h.cfg.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (h *handler) setTokenCookie(c *gin.Context, token auth.Token) {
	maxAge := int(time.Until(token.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(tokenCookie, token.Value, maxAge, "/", "", h.cfg.CookieSecure, true)
}
