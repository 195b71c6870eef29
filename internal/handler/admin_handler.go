package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/prperemyshlev/interview-auth/internal/service"
)

// AdminHandler handles user and permission administration
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers returns a page of users
// @Summary List users
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param skip query int false "Offset"
// @Param limit query int false "Page size, at most 100"
// @Param search query string false "Email or name fragment"
// @Success 200 {object} dto.UserListResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var query dto.ListUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		abortWithBindError(c, err)
		return
	}

	page, err := h.adminService.ListUsers(c.Request.Context(), domain.UserFilter{
		Search: query.Search,
		Skip:   query.Skip,
		Limit:  query.Limit,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	response := dto.UserListResponse{
		Users: make([]dto.UserResponse, 0, len(page.Users)),
		Total: page.Total,
		Skip:  page.Skip,
		Limit: page.Limit,
	}
	for _, u := range page.Users {
		response.Users = append(response.Users, dto.NewUserResponse(u, nil))
	}

	c.JSON(http.StatusOK, response)
}

// CreateUser creates an account; roles above user need roles:manage
// @Summary Create user
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.CreateUserRequest true "New user"
// @Success 201 {object} dto.UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /admin/users [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	actor, _, ok := CurrentUser(c)
	if !ok {
		abortWithError(c, domain.ErrUnauthenticated)
		return
	}

	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	user, err := h.adminService.CreateUser(c.Request.Context(), actor, &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewUserResponse(user, nil))
}

// GetUser returns one user with effective permissions
// @Summary Get user
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} dto.UserResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id} [get]
func (h *AdminHandler) GetUser(c *gin.Context) {
	user, permissions, err := h.adminService.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user, permissions))
}

// UpdateRole changes the role of a user
// @Summary Update user role
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body dto.UpdateRoleRequest true "New role"
// @Success 200 {object} dto.UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /admin/users/{id}/role [put]
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	var req dto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	user, err := h.adminService.UpdateRole(c.Request.Context(), c.Param("id"), domain.Role(req.Role))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user, nil))
}

// UpdateStatus changes the status of a user
// @Summary Update user status
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body dto.UpdateStatusRequest true "New status"
// @Success 200 {object} dto.UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id}/status [put]
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	user, err := h.adminService.UpdateStatus(c.Request.Context(), c.Param("id"), domain.Status(req.Status))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user, nil))
}

// ListPermissions lists permissions
// @Summary List permissions
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param resource query string false "Resource filter"
// @Success 200 {array} dto.PermissionResponse
// @Router /admin/permissions [get]
func (h *AdminHandler) ListPermissions(c *gin.Context) {
	permissions, err := h.adminService.ListPermissions(c.Request.Context(), c.Query("resource"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPermissionResponses(permissions))
}

// CreatePermission defines a permission
// @Summary Create permission
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.CreatePermissionRequest true "Permission"
// @Success 201 {object} dto.PermissionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /admin/permissions [post]
func (h *AdminHandler) CreatePermission(c *gin.Context) {
	var req dto.CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	permission, err := h.adminService.CreatePermission(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewPermissionResponses([]*domain.Permission{permission})[0])
}

// SetUserPermissions replaces the direct grants of a user
// @Summary Set user permissions
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body dto.SetUserPermissionsRequest true "Permission IDs"
// @Success 200 {array} dto.PermissionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id}/permissions [put]
func (h *AdminHandler) SetUserPermissions(c *gin.Context) {
	var req dto.SetUserPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	permissions, err := h.adminService.SetUserPermissions(c.Request.Context(), c.Param("id"), req.PermissionIDs)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPermissionResponses(permissions))
}
