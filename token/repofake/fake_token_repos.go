package faketokenrepo

import (
	"sync"

	"github.com/guaranijs/guarani-sub005/token"
)

var (
	_ token.AccessTokenRepo       = (*FakeAccessTokenRepo)(nil)
	_ token.RefreshTokenRepo      = (*FakeRefreshTokenRepo)(nil)
	_ token.AuthorizationCodeRepo = (*FakeAuthorizationCodeRepo)(nil)
	_ token.DeviceCodeRepo        = (*FakeDeviceCodeRepo)(nil)
)

type FakeAccessTokenRepo struct {
	tokens map[string]*token.AccessToken
	lock   sync.RWMutex
}

func NewFakeAccessTokenRepo() *FakeAccessTokenRepo {
	return &FakeAccessTokenRepo{tokens: make(map[string]*token.AccessToken)}
}

func (r *FakeAccessTokenRepo) Upsert(accessToken *token.AccessToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tokens[accessToken.Handle] = accessToken
	return nil
}

func (r *FakeAccessTokenRepo) Get(handle string) (*token.AccessToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	accessToken, ok := r.tokens[handle]
	if !ok {
		return nil, token.ErrNotFound
	}
	return accessToken, nil
}

func (r *FakeAccessTokenRepo) Delete(handle string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.tokens, handle)
	return nil
}

type FakeRefreshTokenRepo struct {
	tokens map[string]*token.RefreshToken
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{tokens: make(map[string]*token.RefreshToken)}
}

func (r *FakeRefreshTokenRepo) Upsert(refreshToken *token.RefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tokens[refreshToken.Handle] = refreshToken
	return nil
}

func (r *FakeRefreshTokenRepo) Get(handle string) (*token.RefreshToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	refreshToken, ok := r.tokens[handle]
	if !ok {
		return nil, token.ErrNotFound
	}
	return refreshToken, nil
}

// Rotate revokes the old token and stores the replacement under one lock,
// mirroring the single-transaction requirement on real implementations.
func (r *FakeRefreshTokenRepo) Rotate(oldHandle string, newToken *token.RefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	old, ok := r.tokens[oldHandle]
	if !ok {
		return token.ErrNotFound
	}
	if old.IsRevoked {
		return token.ErrRotationConflict
	}
	old.IsRevoked = true
	r.tokens[newToken.Handle] = newToken
	return nil
}

func (r *FakeRefreshTokenRepo) Delete(handle string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.tokens, handle)
	return nil
}

type FakeAuthorizationCodeRepo struct {
	codes map[string]*token.AuthorizationCode
	lock  sync.RWMutex
}

func NewFakeAuthorizationCodeRepo() *FakeAuthorizationCodeRepo {
	return &FakeAuthorizationCodeRepo{codes: make(map[string]*token.AuthorizationCode)}
}

func (r *FakeAuthorizationCodeRepo) Upsert(code *token.AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.codes[code.Code] = code
	return nil
}

func (r *FakeAuthorizationCodeRepo) Get(code string) (*token.AuthorizationCode, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	authCode, ok := r.codes[code]
	if !ok {
		return nil, token.ErrNotFound
	}
	return authCode, nil
}

func (r *FakeAuthorizationCodeRepo) Delete(code string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.codes, code)
	return nil
}

type FakeDeviceCodeRepo struct {
	codes map[string]*token.DeviceCode
	lock  sync.RWMutex
}

func NewFakeDeviceCodeRepo() *FakeDeviceCodeRepo {
	return &FakeDeviceCodeRepo{codes: make(map[string]*token.DeviceCode)}
}

func (r *FakeDeviceCodeRepo) Upsert(deviceCode *token.DeviceCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.codes[deviceCode.DeviceCode] = deviceCode
	return nil
}

func (r *FakeDeviceCodeRepo) Get(deviceCode string) (*token.DeviceCode, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	dc, ok := r.codes[deviceCode]
	if !ok {
		return nil, token.ErrNotFound
	}
	return dc, nil
}

func (r *FakeDeviceCodeRepo) GetByUserCode(userCode string) (*token.DeviceCode, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, dc := range r.codes {
		if dc.UserCode == userCode {
			return dc, nil
		}
	}
	return nil, token.ErrNotFound
}

func (r *FakeDeviceCodeRepo) Delete(deviceCode string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.codes, deviceCode)
	return nil
}
