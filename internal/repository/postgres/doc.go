// Package postgres implements the repository contracts on PostgreSQL via
// database/sql and lib/pq. Schema lives in migrations/.
package postgres
