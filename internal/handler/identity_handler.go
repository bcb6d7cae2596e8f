package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/pkg/response"
)

type studentLookup interface {
	StudentFor(ctx context.Context, principal models.Principal) (*models.Student, error)
}

// MeResponse describes the caller.
type MeResponse struct {
	models.Principal
	Student *models.Student `json:"student,omitempty"`
}

// IdentityHandler exposes the resolved caller.
type IdentityHandler struct {
	students studentLookup
}

// NewIdentityHandler constructs IdentityHandler.
func NewIdentityHandler(students studentLookup) *IdentityHandler {
	return &IdentityHandler{students: students}
}

// Me godoc
// @Summary The authenticated principal and its role
// @Tags Identity
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope "Role could not be resolved"
// @Security BearerAuth
// @Router /me [get]
func (h *IdentityHandler) Me(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	out := MeResponse{Principal: principal}
	if principal.Is(models.RoleStudent) {
		student, err := h.students.StudentFor(c.Request.Context(), principal)
		if err != nil {
			response.Error(c, err)
			return
		}
		out.Student = student
	}
	response.JSON(c, http.StatusOK, out, nil)
}
