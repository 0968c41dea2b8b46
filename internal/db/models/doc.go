// Package models defines the database model types for the supplier portal.
// Each type corresponds to a table and carries db tags for sqlx row scanning and json
// tags for API responses. Query logic lives in the repositories package.
package models
