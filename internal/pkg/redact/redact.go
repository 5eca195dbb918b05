// redact маскирует чувствительные данные перед записью в лог:
// адреса почты, refresh-токены и ссылки, пароли.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Email оставляет первые две руны локальной части и домен.
//
//	"foobar@example.com" -> "fo***@example.com"
//	"ab@ex.com"          -> "***@ex.com"
//	"no-at"              -> "***"
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Fingerprint возвращает короткий отпечаток секрета (первые 8 hex-символов
// sha256): по нему можно сопоставить записи лога, не раскрывая значение.
func Fingerprint(secret string) string {
	if secret == "" {
		return "[EMPTY]"
	}

	sum := sha256.Sum256([]byte(secret))
	return "fp:" + hex.EncodeToString(sum[:4])
}

// Password возвращает заглушку для пароля.
func Password() string { return "[REDACTED_PASSWORD]" }
