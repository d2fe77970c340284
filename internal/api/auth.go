package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartrecipe/internal/auth"
)

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp creates an account and returns its first session.
func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, invalid("", "Invalid request body"), "")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.respondError(c, invalid("email", "Email and password are required"), "")
		return
	}

	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	user, session, err := h.auth.SignUp(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"user": user, "session": session})
}

// SignIn exchanges credentials for a session.
func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, invalid("", "Invalid request body"), "")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.respondError(c, invalid("email", "Email and password are required"), "")
		return
	}

	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	user, session, err := h.auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"user": user, "session": session})
}

// SignOut revokes the caller's token.
func (h *Handler) SignOut(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	if err := h.auth.SignOut(ctx, c.GetString(auth.ContextToken)); err != nil {
		h.respondError(c, err, "")
		return
	}
	respondMessage(c, "Signed out successfully")
}

// Me returns the caller's account.
func (h *Handler) Me(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	user, err := h.auth.Me(ctx, auth.UserID(c))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"user": user})
}
