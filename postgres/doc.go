// Package postgres provides a CredentialStore backed by PostgreSQL, for
// deployments where user records must live in the relational store of record
// instead of Redis. Schema management is embedded; Open runs pending
// migrations before returning.
package postgres
