// Package migrations — встроенные SQL-миграции хранилища учётных данных.
package migrations

import "embed"

// Files содержит все .sql файлы каталога; применяются по возрастанию имени (001, 002, ...).
//
//go:embed *.sql
var Files embed.FS
