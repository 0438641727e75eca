package models

import "time"

// Departments a principal can belong to.
const (
	DepartmentSales           = "sales"
	DepartmentOperations      = "operations"
	DepartmentCustomerSuccess = "customer_success"
	DepartmentMarketing       = "marketing"
	DepartmentProduct         = "product"
	DepartmentFinance         = "finance"
	DepartmentManagement      = "management"
)

// Roles a principal can hold.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleTeamMember = "team_member"
)

// Principal is the authenticated user's identity snapshot as returned by the
// server. It is replaced wholesale on re-fetch, never patched in place.
type Principal struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	FullName   string     `json:"full_name"`
	Department string     `json:"department"`
	Role       string     `json:"role"`
	Phone      string     `json:"phone"`
	Active     bool       `json:"is_active"`
	LastLogin  *time.Time `json:"last_login"`
}

// DisplayName returns the full name, falling back to the username.
func (p *Principal) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

// IsAdmin returns true for admin principals.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanManage returns true for managers and admins. The server owns the
// authoritative gating; this mirrors it for display purposes only.
func (p *Principal) CanManage() bool {
	return p.Role == RoleAdmin || p.Role == RoleManager
}
