// Package postgres provides PostgreSQL implementations of the task and
// document stores defined in internal/store, along with the embedded goose
// migrations that create their tables. Connections go through the pgx
// database/sql driver.
package postgres
