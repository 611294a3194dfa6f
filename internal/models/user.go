package models

// Identity is the caller as established by the authentication layer.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// SystemIdentity is used for transitions the service performs on its own behalf.
var SystemIdentity = Identity{UserID: "system", Role: RoleAdmin}
