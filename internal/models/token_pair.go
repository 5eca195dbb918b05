package models

import "time"

// TokenPair — пара токенов, выдаваемая при входе/регистрации/обновлении.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — случайный секрет в зашифрованном виде; на сервере
//     хранится только хэш исходного значения;
//   - AccessExpiresAt/RefreshExpiresAt — моменты истечения (UTC).
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Message — человекочитаемый ответ операции (например, "Logout success.").
type Message struct {
	Data string
}
