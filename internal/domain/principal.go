package domain

// Principal is the identity and tenant snapshot taken at login time and
// embedded in every access token. Immutable once issued.
type Principal struct {
	UserID        int64  `json:"user_id"`
	BusinessID    int64  `json:"business_id"`
	BranchID      int64  `json:"branch_id"`
	RoleID        int64  `json:"role_id"`
	IsOwner       bool   `json:"is_owner"`
	Name          string `json:"name"`
	ContactNumber string `json:"contact_number"`
	BusinessName  string `json:"business_name"`
	Email         string `json:"email"`
}
