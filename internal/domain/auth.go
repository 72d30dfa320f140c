package domain

// Scope restricts which records a caller may see. A nil OwnerID means unrestricted.
type Scope struct {
	OwnerID *string
}

// Unrestricted reports whether the scope lets every record through.
func (s Scope) Unrestricted() bool {
	return s.OwnerID == nil
}

// Permits reports whether a record owned by ownerID is inside the scope.
func (s Scope) Permits(ownerID string) bool {
	return s.Unrestricted() || *s.OwnerID == ownerID
}

// OwnedBy returns a scope limited to records created by userID.
func OwnedBy(userID string) Scope {
	return Scope{OwnerID: &userID}
}
