package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/services"
)

// RestUserHandler serves the /users endpoints.
type RestUserHandler struct {
	userService services.IUserService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(userService services.IUserService) *RestUserHandler {
	return &RestUserHandler{userService: userService}
}

// respondRegistration maps the registration conflicts onto their messages.
func respondRegistration(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrRegistrationInProgress):
		c.JSON(http.StatusConflict, gin.H{"message": "Registration in progress!"})
	case errors.Is(err, services.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"message": "Already registered!"})
	default:
		respondError(c, err)
	}
}

// CreateUser handles POST /users/createUser.
func (h *RestUserHandler) CreateUser(c *gin.Context) {
	var in services.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.userService.Register(c.Request.Context(), in, c.ClientIP()); err != nil {
		respondRegistration(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Email sent successfully"})
}

// CreateRepairShopUser handles POST /users/createRepairShopUser.
func (h *RestUserHandler) CreateRepairShopUser(c *gin.Context) {
	var in services.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	in.RepairShop = true
	if err := h.userService.RegisterRepairShop(c.Request.Context(), in, c.ClientIP()); err != nil {
		respondRegistration(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Email sent successfully"})
}

// VerifyUser handles POST /users/verifyUser.
func (h *RestUserHandler) VerifyUser(c *gin.Context) {
	var in struct {
		Code string `json:"code" binding:"required,notblank"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if err := h.userService.VerifyUser(c.Request.Context(), in.Code); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found!"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User successfully verified!"})
}

// ResendCode handles POST /users/resendCode.
func (h *RestUserHandler) ResendCode(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	if err := h.userService.ResendCode(c.Request.Context(), in.Email); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found!"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email successfully sent!"})
}

// SignIn handles POST /users/signin. A premium shop past its trial gets a 500
// carrying the checkout url, which the frontend follows.
func (h *RestUserHandler) SignIn(c *gin.Context) {
	var in struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.userService.SignIn(c.Request.Context(), in.Email, in.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, res)
	case errors.Is(err, services.ErrPaymentRequired) && res != nil:
		c.JSON(http.StatusInternalServerError, res)
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusNotFound, gin.H{"message": "Wrong email or password!"})
	case errors.Is(err, services.ErrNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"message": "User not verified"})
	case errors.Is(err, services.ErrAccountDeleted):
		c.JSON(http.StatusNotFound, gin.H{"message": "Repair shop user data not found"})
	default:
		respondError(c, err)
	}
}

// DeleteAccount handles POST /users/deleteAccount.
func (h *RestUserHandler) DeleteAccount(c *gin.Context) {
	var in uidBody
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.userService.DeleteAccount(c.Request.Context(), in.UID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      "Account marked for deletion, email sent",
		"deletionDate": res.DeletionDate,
	})
}

// CancelDelete handles POST /users/cancelDelete.
func (h *RestUserHandler) CancelDelete(c *gin.Context) {
	var in uidBody
	if !bindJSON(c, &in) {
		return
	}
	if err := h.userService.CancelDelete(c.Request.Context(), in.UID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Cancelled deletion"})
}

// RetrieveUserData handles POST /users/retrieveUserData.
func (h *RestUserHandler) RetrieveUserData(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.userService.FindByEmail(c.Request.Context(), in.Email)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Wrong email or password!"})
			return
		}
		respondError(c, err)
		return
	}
	user.SessionID = nil
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// RetrieveRepairShopData handles POST /users/retrieveRepairShopData. The
// body is an object whose values are shop uids.
func (h *RestUserHandler) RetrieveRepairShopData(c *gin.Context) {
	var body map[string]string
	if !bindJSON(c, &body) {
		return
	}
	uids := make([]string, 0, len(body))
	for _, uid := range body {
		uids = append(uids, uid)
	}
	users, err := h.userService.FindRepairShops(c.Request.Context(), uids)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "No repair shops found!"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"users": users})
}

// CheckTrialPeriod handles POST /users/checkTrialPeriod.
func (h *RestUserHandler) CheckTrialPeriod(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	inTrial, err := h.userService.CheckTrialPeriod(c.Request.Context(), in.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	if !inTrial {
		c.JSON(http.StatusForbidden, gin.H{"message": "No trial left, sign out user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Trial left"})
}
