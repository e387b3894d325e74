package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgtype/pgxtype"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/logging"
)

type Migration struct {
	ID   int
	Name string
	SQL  string
}

// MigrationsFromStatements numbers statements from 1 in the order given.
func MigrationsFromStatements(prefix string, statements []string) []Migration {
	migrations := make([]Migration, len(statements))
	for i, sql := range statements {
		migrations[i] = Migration{ID: i + 1, Name: fmt.Sprintf("%s_%d", prefix, i+1), SQL: sql}
	}
	return migrations
}

// UpdateDatabase applies every migration with an id above the version recorded in the named sequence, and
// records the new version after each one.
func UpdateDatabase(ctx context.Context, db pgxtype.Querier, versionSequence string, migrations []Migration) error {
	log := logging.WithField("sequence", versionSequence)
	version, err := readVersion(ctx, db, versionSequence)
	if err != nil {
		return err
	}
	log.Debugf("Current schema version %d", version)

	for _, m := range migrations {
		if m.ID <= version {
			continue
		}
		if _, err := db.Exec(ctx, m.SQL); err != nil {
			return errors.Wrapf(err, "applying migration %s", m.Name)
		}
		version = m.ID
		if err := setVersion(ctx, db, versionSequence, version); err != nil {
			return err
		}
		log.Infof("Applied migration %s", m.Name)
	}
	return nil
}

func readVersion(ctx context.Context, db pgxtype.Querier, sequence string) (int, error) {
	_, err := db.Exec(ctx, fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s START WITH 0 MINVALUE 0;`, sequence))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var version int
	if err := db.QueryRow(ctx, fmt.Sprintf(`SELECT last_value FROM %s`, sequence)).Scan(&version); err != nil {
		return 0, errors.WithStack(err)
	}
	return version, nil
}

func setVersion(ctx context.Context, db pgxtype.Querier, sequence string, version int) error {
	_, err := db.Exec(ctx, `SELECT setval($1, $2)`, sequence, version)
	return errors.WithStack(err)
}
