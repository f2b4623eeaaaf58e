// Package migrations содержит SQL схемы для обоих драйверов хранилища.
package migrations

import "embed"

// FS - встроенные файлы миграций: postgres/*.sql и sqlite/*.sql
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
