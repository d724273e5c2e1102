package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pharmacare-backend/internal/database"
	"pharmacare-backend/internal/models"
)

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// HandleLogin authenticates a user and issues a JWT
func HandleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid login payload"})
		return
	}

	var user models.User
	if err := database.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid credentials"})
		return
	}

	if !CheckPassword(req.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid credentials"})
		return
	}

	if user.Status != "active" {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "User account is disabled"})
		return
	}

	token, expiry, err := GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to issue token"})
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	database.DB.Model(&user).Update("last_login_at", now)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"token":      token,
			"expires_at": expiry.Format(time.RFC3339),
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
				"name":  user.FullName(),
				"role":  user.Role,
			},
		},
	})
}
