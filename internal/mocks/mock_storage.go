// Mocks in mockgen v1.6.0 layout; refresh with `go generate ./internal/storage/...`.
// Source: github.com/pribylovaa/go-auth-service/internal/storage (interfaces: UserStorage,RoleStorage,RefreshTokenStorage)

// Package mocks holds GoMock doubles for the storage and mail ports.
package mocks

import (
	context "context"
	reflect "reflect"
	time "time"

	gomock "github.com/golang/mock/gomock"
	uuid "github.com/google/uuid"
	models "github.com/pribylovaa/go-auth-service/internal/models"
)

// MockUserStorage is a mock of UserStorage interface.
type MockUserStorage struct {
	ctrl     *gomock.Controller
	recorder *MockUserStorageMockRecorder
}

// MockUserStorageMockRecorder is the mock recorder for MockUserStorage.
type MockUserStorageMockRecorder struct {
	mock *MockUserStorage
}

// NewMockUserStorage creates a new mock instance.
func NewMockUserStorage(ctrl *gomock.Controller) *MockUserStorage {
	mock := &MockUserStorage{ctrl: ctrl}
	mock.recorder = &MockUserStorageMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockUserStorage) EXPECT() *MockUserStorageMockRecorder {
	return m.recorder
}

// SaveUser mocks base method.
func (m *MockUserStorage) SaveUser(arg0 context.Context, arg1 *models.User) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SaveUser", arg0, arg1)
	ret0, _ := ret[0].(error)
	return ret0
}

// SaveUser indicates an expected call of SaveUser.
func (mr *MockUserStorageMockRecorder) SaveUser(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SaveUser", reflect.TypeOf((*MockUserStorage)(nil).SaveUser), arg0, arg1)
}

// UpdateUser mocks base method.
func (m *MockUserStorage) UpdateUser(arg0 context.Context, arg1 uuid.UUID, arg2 models.UserUpdate) (*models.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UpdateUser", arg0, arg1, arg2)
	ret0, _ := ret[0].(*models.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// UpdateUser indicates an expected call of UpdateUser.
func (mr *MockUserStorageMockRecorder) UpdateUser(arg0, arg1, arg2 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UpdateUser", reflect.TypeOf((*MockUserStorage)(nil).UpdateUser), arg0, arg1, arg2)
}

// UserByEmail mocks base method.
func (m *MockUserStorage) UserByEmail(arg0 context.Context, arg1 string) (*models.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UserByEmail", arg0, arg1)
	ret0, _ := ret[0].(*models.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// UserByEmail indicates an expected call of UserByEmail.
func (mr *MockUserStorageMockRecorder) UserByEmail(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UserByEmail", reflect.TypeOf((*MockUserStorage)(nil).UserByEmail), arg0, arg1)
}

// UserByID mocks base method.
func (m *MockUserStorage) UserByID(arg0 context.Context, arg1 uuid.UUID) (*models.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UserByID", arg0, arg1)
	ret0, _ := ret[0].(*models.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// UserByID indicates an expected call of UserByID.
func (mr *MockUserStorageMockRecorder) UserByID(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UserByID", reflect.TypeOf((*MockUserStorage)(nil).UserByID), arg0, arg1)
}

// MockRoleStorage is a mock of RoleStorage interface.
type MockRoleStorage struct {
	ctrl     *gomock.Controller
	recorder *MockRoleStorageMockRecorder
}

// MockRoleStorageMockRecorder is the mock recorder for MockRoleStorage.
type MockRoleStorageMockRecorder struct {
	mock *MockRoleStorage
}

// NewMockRoleStorage creates a new mock instance.
func NewMockRoleStorage(ctrl *gomock.Controller) *MockRoleStorage {
	mock := &MockRoleStorage{ctrl: ctrl}
	mock.recorder = &MockRoleStorageMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRoleStorage) EXPECT() *MockRoleStorageMockRecorder {
	return m.recorder
}

// RoleByNameOrCreate mocks base method.
func (m *MockRoleStorage) RoleByNameOrCreate(arg0 context.Context, arg1 string) (*models.Role, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RoleByNameOrCreate", arg0, arg1)
	ret0, _ := ret[0].(*models.Role)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// RoleByNameOrCreate indicates an expected call of RoleByNameOrCreate.
func (mr *MockRoleStorageMockRecorder) RoleByNameOrCreate(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RoleByNameOrCreate", reflect.TypeOf((*MockRoleStorage)(nil).RoleByNameOrCreate), arg0, arg1)
}

// MockRefreshTokenStorage is a mock of RefreshTokenStorage interface.
type MockRefreshTokenStorage struct {
	ctrl     *gomock.Controller
	recorder *MockRefreshTokenStorageMockRecorder
}

// MockRefreshTokenStorageMockRecorder is the mock recorder for MockRefreshTokenStorage.
type MockRefreshTokenStorageMockRecorder struct {
	mock *MockRefreshTokenStorage
}

// NewMockRefreshTokenStorage creates a new mock instance.
func NewMockRefreshTokenStorage(ctrl *gomock.Controller) *MockRefreshTokenStorage {
	mock := &MockRefreshTokenStorage{ctrl: ctrl}
	mock.recorder = &MockRefreshTokenStorageMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRefreshTokenStorage) EXPECT() *MockRefreshTokenStorageMockRecorder {
	return m.recorder
}

// DeleteExpiredTokens mocks base method.
func (m *MockRefreshTokenStorage) DeleteExpiredTokens(arg0 context.Context, arg1 time.Time) (int64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DeleteExpiredTokens", arg0, arg1)
	ret0, _ := ret[0].(int64)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// DeleteExpiredTokens indicates an expected call of DeleteExpiredTokens.
func (mr *MockRefreshTokenStorageMockRecorder) DeleteExpiredTokens(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DeleteExpiredTokens", reflect.TypeOf((*MockRefreshTokenStorage)(nil).DeleteExpiredTokens), arg0, arg1)
}

// DeleteRefreshToken mocks base method.
func (m *MockRefreshTokenStorage) DeleteRefreshToken(arg0 context.Context, arg1 string) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DeleteRefreshToken", arg0, arg1)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// DeleteRefreshToken indicates an expected call of DeleteRefreshToken.
func (mr *MockRefreshTokenStorageMockRecorder) DeleteRefreshToken(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DeleteRefreshToken", reflect.TypeOf((*MockRefreshTokenStorage)(nil).DeleteRefreshToken), arg0, arg1)
}

// DeleteUserRefreshToken mocks base method.
func (m *MockRefreshTokenStorage) DeleteUserRefreshToken(arg0 context.Context, arg1 uuid.UUID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DeleteUserRefreshToken", arg0, arg1)
	ret0, _ := ret[0].(error)
	return ret0
}

// DeleteUserRefreshToken indicates an expected call of DeleteUserRefreshToken.
func (mr *MockRefreshTokenStorageMockRecorder) DeleteUserRefreshToken(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DeleteUserRefreshToken", reflect.TypeOf((*MockRefreshTokenStorage)(nil).DeleteUserRefreshToken), arg0, arg1)
}

// RefreshTokenByHash mocks base method.
func (m *MockRefreshTokenStorage) RefreshTokenByHash(arg0 context.Context, arg1 string) (*models.RefreshToken, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RefreshTokenByHash", arg0, arg1)
	ret0, _ := ret[0].(*models.RefreshToken)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// RefreshTokenByHash indicates an expected call of RefreshTokenByHash.
func (mr *MockRefreshTokenStorageMockRecorder) RefreshTokenByHash(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RefreshTokenByHash", reflect.TypeOf((*MockRefreshTokenStorage)(nil).RefreshTokenByHash), arg0, arg1)
}

// RefreshTokenByUser mocks base method.
func (m *MockRefreshTokenStorage) RefreshTokenByUser(arg0 context.Context, arg1 uuid.UUID) (*models.RefreshToken, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RefreshTokenByUser", arg0, arg1)
	ret0, _ := ret[0].(*models.RefreshToken)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// RefreshTokenByUser indicates an expected call of RefreshTokenByUser.
func (mr *MockRefreshTokenStorageMockRecorder) RefreshTokenByUser(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RefreshTokenByUser", reflect.TypeOf((*MockRefreshTokenStorage)(nil).RefreshTokenByUser), arg0, arg1)
}

// RotateRefreshToken mocks base method.
func (m *MockRefreshTokenStorage) RotateRefreshToken(arg0 context.Context, arg1 string, arg2 *models.RefreshToken) (*models.RefreshToken, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RotateRefreshToken", arg0, arg1, arg2)
	ret0, _ := ret[0].(*models.RefreshToken)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// RotateRefreshToken indicates an expected call of RotateRefreshToken.
func (mr *MockRefreshTokenStorageMockRecorder) RotateRefreshToken(arg0, arg1, arg2 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RotateRefreshToken", reflect.TypeOf((*MockRefreshTokenStorage)(nil).RotateRefreshToken), arg0, arg1, arg2)
}

// UpsertRefreshToken mocks base method.
func (m *MockRefreshTokenStorage) UpsertRefreshToken(arg0 context.Context, arg1 *models.RefreshToken) (*models.RefreshToken, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UpsertRefreshToken", arg0, arg1)
	ret0, _ := ret[0].(*models.RefreshToken)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// UpsertRefreshToken indicates an expected call of UpsertRefreshToken.
func (mr *MockRefreshTokenStorageMockRecorder) UpsertRefreshToken(arg0, arg1 interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UpsertRefreshToken", reflect.TypeOf((*MockRefreshTokenStorage)(nil).UpsertRefreshToken), arg0, arg1)
}
