// Package db embeds the shopdesk schema and the default product catalog.
package db

import _ "embed"

// Schema creates every shopdesk table. All statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the default seed catalog used when seed-db is given no file.
//
//go:embed seed/products.json
var Catalog []byte
