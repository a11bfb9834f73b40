package auth

// authIdentity is the internal Identity implementation handed out after a
// link is consumed or a refresh credential is rotated.
type authIdentity struct {
	id    string
	email string
	role  string
}

func (a authIdentity) ID() string    { return a.id }
func (a authIdentity) Email() string { return a.email }
func (a authIdentity) Role() string  { return a.role }

// IdentityFromPrincipal adapts a stored principal plus its effective role
// within a tenant into an Identity.
func IdentityFromPrincipal(user *User, role Role) Identity {
	if user == nil {
		return nil
	}
	return authIdentity{
		id:    user.ID.String(),
		email: user.Email,
		role:  string(role),
	}
}
