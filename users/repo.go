package users

// UserRepo is the storage contract for end-user records.
type UserRepo interface {
	Upsert(user *User) error
	Delete(userID string) error
	GetByID(userID string) (*User, error)
	GetByEmail(email string) (*User, error)
	List(offset, limit int) ([]*User, error)
}

// ResourceOwnerCredentialsRepo is the optional extension required by the
// password grant. The password grant validator asserts at construction time
// that the injected UserRepo implements it.
type ResourceOwnerCredentialsRepo interface {
	GetByResourceOwnerCredentials(username, password string) (*User, error)
}
