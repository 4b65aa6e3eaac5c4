package auth

import (
	"errors"
	"net/http"
	"net/url"

	apperrors "mathtutor_go_backend/internal/errors"
	"mathtutor_go_backend/internal/mail"
	"mathtutor_go_backend/internal/models"
	"mathtutor_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the account routes.
type Deps struct {
	Users       services.UserService
	Tokens      *TokenManager
	Mailer      mail.Publisher
	FrontendURL string
}

func SetupRoutes(r *gin.Engine, d Deps) {
	users := r.Group("/api/users")
	{
		users.GET("/authenticate", emailAvailableHandler(d))
		users.POST("/authenticate", registerHandler(d))
		users.PUT("/authenticate", verifyEmailHandler(d))
		users.POST("/verify", loginHandler(d))
		users.POST("/verify/resend", resendHandler(d))
	}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Password  string `json:"password" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type resendRequest struct {
	Email string `json:"email" binding:"required"`
}

func emailAvailableHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Query("email")
		if email == "" {
			apperrors.HandleError(c, apperrors.New400Error("email is required"))
			return
		}
		available, err := d.Users.EmailAvailable(c.Request.Context(), email)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		if !available {
			apperrors.HandleError(c, services.ErrEmailTaken)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true})
	}
}

func registerHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("email, firstName and password are required"))
			return
		}

		user, err := d.Users.Register(c.Request.Context(), services.RegisterInput{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Password:  req.Password,
		})
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		sendVerification(c, d, user)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func verifyEmailHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("token is required"))
			return
		}

		userID, err := d.Tokens.VerifyEmailToken(req.Token)
		if errors.Is(err, ErrTokenExpired) {
			apperrors.HandleError(c, apperrors.NewTokenError("Token expired", err))
			return
		}
		if err != nil {
			apperrors.HandleError(c, apperrors.NewTokenError("Invalid token", err))
			return
		}

		user, err := d.Users.GetByID(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		if user.IsVerified {
			c.JSON(http.StatusOK, gin.H{"message": "User already verified"})
			return
		}
		if err := d.Users.MarkVerified(c.Request.Context(), userID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified"})
	}
}

func loginHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("email and password are required"))
			return
		}

		if _, err := d.Users.GetByEmail(c.Request.Context(), req.Email); err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				apperrors.HandleError(c, apperrors.New400Error("Please Register"))
				return
			}
			apperrors.HandleError(c, err)
			return
		}

		user, err := d.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		if !user.IsVerified {
			sendVerification(c, d, user)
			c.JSON(http.StatusCreated, gin.H{"emailSent": true, "verified": false})
			return
		}

		token, err := d.Tokens.Issue(user.ID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"verified": true, "emailSent": false, "token": token})
	}
}

func resendHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("email is required"))
			return
		}
		user, err := d.Users.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		if user.IsVerified {
			apperrors.HandleError(c, apperrors.New400Error("Email already verified"))
			return
		}
		sendVerification(c, d, user)
		c.JSON(http.StatusCreated, gin.H{"emailSent": true, "verified": false})
	}
}

// sendVerification queues the link email. Failures are logged only; the
// user can ask for another link.
func sendVerification(c *gin.Context, d Deps, user *models.User) {
	logger := zerolog.Ctx(c.Request.Context())

	token, err := d.Tokens.IssueVerification(user.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to issue verification token")
		return
	}
	link := d.FrontendURL + "/verify?token=" + url.QueryEscape(token)
	if err := d.Mailer.PublishVerification(c.Request.Context(), mail.VerificationEmail{
		To:        user.Email,
		FirstName: user.FirstName,
		Link:      link,
	}); err != nil {
		logger.Error().Err(err).Str("userID", user.ID.String()).Msg("Failed to queue verification email")
	}
}
