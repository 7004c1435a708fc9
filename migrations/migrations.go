// Package migrations embeds the Postgres schema for the conversation,
// action link and webhook dedupe stores.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
