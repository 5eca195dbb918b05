// service реализует бизнес-логику auth-сервиса: регистрацию, вход,
// выход, ротацию токенов и действия по ссылкам из писем.
package service

import (
	"fmt"

	"github.com/pribylovaa/go-auth-service/internal/cache"
	"github.com/pribylovaa/go-auth-service/internal/config"
	"github.com/pribylovaa/go-auth-service/internal/links"
	"github.com/pribylovaa/go-auth-service/internal/mail"
	"github.com/pribylovaa/go-auth-service/internal/password"
	"github.com/pribylovaa/go-auth-service/internal/storage"
)

// Metrics — счётчик исходов операций сервиса.
type Metrics interface {
	AuthEvent(op, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) AuthEvent(string, string) {}

// Deps — внешние коллабораторы сервиса.
// Tokens может указывать на отдельное хранилище (например, mongo),
// пользователи и роли при этом остаются в основном.
type Deps struct {
	Users  storage.UserStorage
	Roles  storage.RoleStorage
	Tokens storage.RefreshTokenStorage
	Hasher password.Hasher
	Mailer mail.Sender
}

// Service — оркестратор аутентификации.
type Service struct {
	users     storage.UserStorage
	roles     storage.RoleStorage
	tokens    *TokenManager
	links     *links.Codec
	hasher    password.Hasher
	mailer    mail.Sender
	usedLinks cache.UsedLinks
	metrics   Metrics
	appURL    string
}

// New создаёт сервис. Шифры refresh-токенов и ссылок строятся из cfg.
func New(d Deps, cfg *config.Config) (*Service, error) {
	const op = "service.service.New"

	tm, err := NewTokenManager(d.Tokens, cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	codec, err := links.New(cfg.Links.Secret, cfg.Links.IV, cfg.Links.TTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hasher := d.Hasher
	if hasher == nil {
		hasher = password.NewBcrypt(cfg.Auth.BcryptCost)
	}

	mailer := d.Mailer
	if mailer == nil {
		mailer = mail.LogSender{}
	}

	return &Service{
		users:     d.Users,
		roles:     d.Roles,
		tokens:    tm,
		links:     codec,
		hasher:    hasher,
		mailer:    mailer,
		usedLinks: cache.NewMemoryUsedLinks(),
		metrics:   nopMetrics{},
		appURL:    cfg.App.URL,
	}, nil
}

// SetUsedLinks подменяет хранилище отметок о погашенных ссылках (например, на Redis).
func (s *Service) SetUsedLinks(u cache.UsedLinks) {
	if u != nil {
		s.usedLinks = u
	}
}

// SetMetrics подключает метрики.
func (s *Service) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// Tokens возвращает менеджер токенов (нужен транспорту для валидации).
func (s *Service) Tokens() *TokenManager { return s.tokens }

// observe фиксирует исход операции в метриках.
func (s *Service) observe(op string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = KindOf(*err).String()
	}

	s.metrics.AuthEvent(op, outcome)
}
