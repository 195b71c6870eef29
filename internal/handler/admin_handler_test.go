package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/prperemyshlev/interview-auth/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdminService struct {
	service.AdminService

	err       error
	gotRole   domain.Role
	gotFilter domain.UserFilter
	gotActor  *domain.User
	gotCreate *dto.CreateUserRequest
}

func (s *stubAdminService) UpdateRole(_ context.Context, userID string, role domain.Role) (*domain.User, error) {
	s.gotRole = role
	if s.err != nil {
		return nil, s.err
	}
	return &domain.User{ID: userID, Role: role, Status: domain.StatusActive}, nil
}

func (s *stubAdminService) ListUsers(_ context.Context, filter domain.UserFilter) (*domain.UserPage, error) {
	s.gotFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	page := filter.Page()
	return &domain.UserPage{
		Users: []*domain.User{{ID: "u1", Email: "alice@example.com", Role: domain.RoleUser}},
		Total: 31,
		Skip:  page.Skip,
		Limit: page.Limit,
	}, nil
}

func (s *stubAdminService) CreateUser(_ context.Context, actor *domain.User, req *dto.CreateUserRequest) (*domain.User, error) {
	s.gotActor, s.gotCreate = actor, req
	if s.err != nil {
		return nil, s.err
	}
	return &domain.User{ID: "u2", Email: req.Email, Role: domain.Role(req.Role), Status: domain.StatusActive}, nil
}

func (s *stubAdminService) CreatePermission(_ context.Context, req *dto.CreatePermissionRequest) (*domain.Permission, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Permission{ID: "p1", Name: req.Name, Resource: req.Resource, Action: req.Action}, nil
}

func newAdminRouter(svc *stubAdminService) *gin.Engine {
	h := NewAdminHandler(svc)

	actor := &domain.User{ID: "admin-1", Role: domain.RoleAdmin}

	router := gin.New()
	router.GET("/users", h.ListUsers)
	router.POST("/users", func(c *gin.Context) { c.Set(userKey, actor) }, h.CreateUser)
	router.POST("/anonymous/users", h.CreateUser)
	router.PUT("/users/:id/role", h.UpdateRole)
	router.POST("/permissions", h.CreatePermission)
	return router
}

func TestAdminListUsers_BindsQuery(t *testing.T) {
	svc := &stubAdminService{}
	router := newAdminRouter(svc)

	rec := perform(router, http.MethodGet, "/users?skip=10&limit=5&search=ali", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.UserFilter{Search: "ali", Skip: 10, Limit: 5}, svc.gotFilter)
	assert.Contains(t, rec.Body.String(), "alice@example.com")

	rec = perform(router, http.MethodGet, "/users?limit=lots", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListUsers_ReportsEffectivePageAndTotal(t *testing.T) {
	router := newAdminRouter(&stubAdminService{})

	rec := perform(router, http.MethodGet, "/users", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body dto.UserListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.MaxUserPageSize, body.Limit)
	assert.Equal(t, 0, body.Skip)
	assert.Equal(t, 31, body.Total)
	assert.Len(t, body.Users, 1)
}

func TestAdminCreateUser(t *testing.T) {
	svc := &stubAdminService{}
	router := newAdminRouter(svc)
	header := map[string]string{"Content-Type": "application/json"}

	rec := perform(router, http.MethodPost, "/users",
		jsonBody(`{"email":"new@example.com","password":"Secret123","role":"admin"}`), header)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "new@example.com")
	require.NotNil(t, svc.gotActor)
	assert.Equal(t, "admin-1", svc.gotActor.ID)
	assert.Equal(t, "admin", svc.gotCreate.Role)

	rec = perform(router, http.MethodPost, "/users", jsonBody(`{"email":"new@example.com"}`), header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(router, http.MethodPost, "/anonymous/users",
		jsonBody(`{"email":"new@example.com","password":"Secret123"}`), header)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCreateUser_ElevatedRoleForbidden(t *testing.T) {
	router := newAdminRouter(&stubAdminService{err: fmt.Errorf("creating a super_admin requires roles:manage: %w", domain.ErrForbidden)})

	rec := perform(router, http.MethodPost, "/users",
		jsonBody(`{"email":"boss@example.com","password":"Secret123","role":"super_admin"}`),
		map[string]string{"Content-Type": "application/json"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUpdateRole(t *testing.T) {
	svc := &stubAdminService{}
	router := newAdminRouter(svc)
	header := map[string]string{"Content-Type": "application/json"}

	rec := perform(router, http.MethodPut, "/users/u1/role", jsonBody(`{"role":"admin"}`), header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RoleAdmin, svc.gotRole)

	rec = perform(router, http.MethodPut, "/users/u1/role", jsonBody(`{}`), header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateRole_SuperAdminFloor(t *testing.T) {
	router := newAdminRouter(&stubAdminService{err: fmt.Errorf("cannot demote the last super admin: %w", domain.ErrConflict)})

	rec := perform(router, http.MethodPut, "/users/u1/role", jsonBody(`{"role":"user"}`),
		map[string]string{"Content-Type": "application/json"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "last super admin")
}

func TestAdminCreatePermission(t *testing.T) {
	router := newAdminRouter(&stubAdminService{})

	rec := perform(router, http.MethodPost, "/permissions",
		jsonBody(`{"name":"export_reports","resource":"reports","action":"export"}`),
		map[string]string{"Content-Type": "application/json"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "export_reports")
}
