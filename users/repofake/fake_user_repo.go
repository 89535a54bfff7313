package fakeuserrepo

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/guaranijs/guarani-sub005/users"
)

var (
	_ users.UserRepo                     = (*FakeUserRepo)(nil)
	_ users.ResourceOwnerCredentialsRepo = (*FakeUserRepo)(nil)
)

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ur.users[user.ID] = user
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *FakeUserRepo) Delete(userID string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	delete(ur.emailIds, user.Email)
	delete(ur.users, userID)
	return nil
}

func (ur *FakeUserRepo) GetByID(userID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[userID]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user, nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userID, ok := ur.emailIds[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.users[userID], nil
}

// GetByResourceOwnerCredentials verifies the username and password against
// the stored bcrypt hash. A lookup miss and a password mismatch are
// indistinguishable to the caller.
func (ur *FakeUserRepo) GetByResourceOwnerCredentials(username, password string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	for _, user := range ur.users {
		if user.Username != username && user.Email != username {
			continue
		}
		if !users.CheckPasswordHash(password, user.PasswordHash) {
			return nil, users.ErrInvalidCredentials
		}
		return user, nil
	}
	return nil, users.ErrInvalidCredentials
}

func (ur *FakeUserRepo) List(offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	all := make([]*users.User, 0, len(ur.users))
	for _, u := range ur.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
