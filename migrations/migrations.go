// migrations содержит SQL-миграции схемы auth-сервиса (формат goose).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
