package migrations

import _ "embed"

// Migration represents a single SQL migration to apply in order.
type Migration struct {
	ID     string
	Script string
}

//go:embed 0001_resolutions.sql
var resolutions string

// All lists migrations in application order.
var All = []Migration{
	{ID: "0001_resolutions", Script: resolutions},
}
