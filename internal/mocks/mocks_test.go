package mocks

import (
	"github.com/pribylovaa/go-auth-service/internal/mail"
	"github.com/pribylovaa/go-auth-service/internal/storage"
)

// Моки должны оставаться в синхроне с портами.
var (
	_ storage.UserStorage         = (*MockUserStorage)(nil)
	_ storage.RoleStorage         = (*MockRoleStorage)(nil)
	_ storage.RefreshTokenStorage = (*MockRefreshTokenStorage)(nil)
	_ mail.Sender                 = (*MockSender)(nil)
)
