package migrations

import (
	_ "embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quizzes.sql
var createQuizzesSQL string

//go:embed 0002_create_groups.sql
var createGroupsSQL string

//go:embed 0003_create_session_results.sql
var createSessionResultsSQL string

var Migrations = migrate.NewMigrations()
