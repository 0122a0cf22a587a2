package domain

// RegistrationInput carries the fields needed to create a business, its first
// branch and its owner account in one stored operation.
type RegistrationInput struct {
	BusinessName    string `json:"business_name"`
	BusinessEmail   string `json:"business_email"`
	BusinessContact string `json:"business_contact"`
	BranchName      string `json:"branch_name"`
	OwnerName       string `json:"owner_name"`
	OwnerEmail      string `json:"owner_email"`
	OwnerContact    string `json:"owner_contact"`
}

// RegistrationResult holds the three ids generated by a successful
// registration.
type RegistrationResult struct {
	BusinessID int64 `json:"businessId"`
	BranchID   int64 `json:"branchId"`
	OwnerID    int64 `json:"ownerId"`
}
