// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the DDL for the coupons and coupon_applications tables. It is
// idempotent and applied on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
