package httpapi

import (
	"net/http"

	"StreamAccounts/internal/domain"
)

type rolesRequest struct {
	Roles []string `json:"roles"`
}

func (a *api) handleAdminRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.adminSvc.ListRoles(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Roles retrieved successfully.", map[string]any{
		"roles": toRoleResponses(roles),
	})
}

func (a *api) handleAdminUserGet(w http.ResponseWriter, r *http.Request) {
	d, err := a.adminSvc.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "User retrieved successfully.", toUserDetailResponse(d))
}

func (a *api) handleAdminRolesAssign(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}

	d, err := a.adminSvc.AssignRoles(r.Context(), r.PathValue("id"), req.Roles)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Roles assigned successfully.", toUserDetailResponse(d))
}

func (a *api) handleAdminRolesSync(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if req.Roles == nil {
		WriteDomainError(w, domain.FieldError("roles", "is required"))
		return
	}

	d, err := a.adminSvc.SyncRoles(r.Context(), r.PathValue("id"), req.Roles)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Roles synced successfully.", toUserDetailResponse(d))
}

func (a *api) handleAdminRoleRemove(w http.ResponseWriter, r *http.Request) {
	d, err := a.adminSvc.RemoveRole(r.Context(), r.PathValue("id"), r.PathValue("role"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Role removed successfully.", toUserDetailResponse(d))
}

func (a *api) handleAdminUserDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := CurrentUser(r.Context())
	id := r.PathValue("id")

	if err := a.adminSvc.DeleteUser(r.Context(), actor.ID, id); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "User deleted successfully.", map[string]any{"deleted_id": id})
}

func (a *api) handleAdminUserRestore(w http.ResponseWriter, r *http.Request) {
	d, err := a.adminSvc.RestoreUser(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "User restored successfully.", toUserDetailResponse(d))
}

// handleAdminRoleAnalytics summarizes the role catalog for content and
// platform operators.
func (a *api) handleAdminRoleAnalytics(w http.ResponseWriter, r *http.Request) {
	roles, err := a.adminSvc.ListRoles(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	type roleSummary struct {
		Name             string `json:"name"`
		PermissionsCount int    `json:"permissions_count"`
	}
	summary := make([]roleSummary, 0, len(roles))
	for _, role := range roles {
		summary = append(summary, roleSummary{Name: role.Name, PermissionsCount: len(role.Permissions)})
	}
	WriteData(w, http.StatusOK, "Role analytics retrieved successfully.", map[string]any{
		"roles":             summary,
		"total_roles":       len(roles),
		"total_permissions": len(domain.PermissionsOf(roles)),
	})
}
