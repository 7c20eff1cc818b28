package accounts

// AdminUserID is the fixed principal ID for the configured admin account.
const AdminUserID = "admin"

// RoleAdmin is the only role this deployment knows.
const RoleAdmin = "admin"

// Account represents an authenticated principal.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}
