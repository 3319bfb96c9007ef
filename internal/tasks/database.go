package tasks

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
)

// PostgresUser is the database superuser account on the target.
const PostgresUser = "postgres"

// CreateDBUser creates the database role and sets its password. The role may
// already exist.
func (d *Deployment) CreateDBUser(ctx context.Context) error {
	user, err := d.Env.String(env.KeyDBUser)
	if err != nil {
		return err
	}
	password, err := d.Env.String(env.KeyDBPassword)
	if err != nil {
		return err
	}

	if _, err := d.Remote.WarnOnly().SudoAs(ctx, PostgresUser, "createuser -DRSw "+remote.Quote(user)); err != nil {
		return err
	}
	sql := fmt.Sprintf("ALTER USER %s PASSWORD %s;", pgIdent(user), pgLiteral(password))
	_, err = d.Remote.SudoAs(ctx, PostgresUser, "psql -c "+remote.Quote(sql))
	return err
}

// pgIdent quotes s as an SQL identifier.
func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// pgLiteral quotes s as an SQL string literal.
func pgLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CreateDB creates the database owned by db_user.
func (d *Deployment) CreateDB(ctx context.Context) error {
	user, err := d.Env.String(env.KeyDBUser)
	if err != nil {
		return err
	}
	options, err := d.Env.String(env.KeyDBOptions)
	if err != nil {
		return err
	}
	name, err := d.Env.String(env.KeyDBName)
	if err != nil {
		return err
	}
	_, err = d.Remote.SudoAs(ctx, PostgresUser, join("createdb -O", remote.Quote(user), options, name))
	return err
}

// ConfigurePostgreSQL allows password logins for the project database,
// disables the catch-all local rule and restarts PostgreSQL.
func (d *Deployment) ConfigurePostgreSQL(ctx context.Context) error {
	hba, err := d.Env.String(env.KeyPgHba)
	if err != nil {
		return err
	}
	version, err := d.Env.String(env.KeyPostgreSQLVersion)
	if err != nil {
		return err
	}
	line, err := d.Env.Format("local {db_name} {db_user} password")
	if err != nil {
		return err
	}

	if err := d.Remote.Append(ctx, hba, line, true); err != nil {
		return err
	}
	if err := d.Remote.Comment(ctx, hba, LocalAuthPattern(version), true); err != nil {
		return err
	}
	_, err = d.Remote.Sudo(ctx, "service postgresql restart")
	return err
}

// LocalAuthPattern matches the packaged catch-all "local all all" rule of
// pg_hba.conf. Its method is ident before PostgreSQL 9.1 and peer from 9.1.
func LocalAuthPattern(version string) string {
	method := "ident"
	if ValidPostgreSQLVersion(version) && semver.Compare("v"+version, "v9.1") >= 0 {
		method = "peer"
	}
	return "local[[:space:]]+all[[:space:]]+all[[:space:]]+" + method
}

// ValidPostgreSQLVersion reports whether version is a numeric release such as
// "8.4" or "12".
func ValidPostgreSQLVersion(version string) bool {
	v := "v" + version
	return version != "" && semver.IsValid(v) && semver.Prerelease(v) == "" && semver.Build(v) == ""
}

// CloneDB copies the target database into a local database of the same
// name. The sequence is not re-entrant: an interruption can leave the dump
// on the target and the local database half recreated.
func (d *Deployment) CloneDB(ctx context.Context) error {
	name, err := d.Env.String(env.KeyDBName)
	if err != nil {
		return err
	}
	user, err := d.Env.String(env.KeyDBUser)
	if err != nil {
		return err
	}
	options, err := d.Env.String(env.KeyDBOptions)
	if err != nil {
		return err
	}
	siteRoot, err := d.Env.String(env.KeySiteRoot)
	if err != nil {
		return err
	}
	port, err := d.Env.String(env.KeyPort)
	if err != nil {
		return err
	}
	asPostgres, err := d.Env.Bool(env.KeyCloneDBSudo)
	if err != nil {
		return err
	}

	dumpFile := name + ".sql"
	dump := path.Join(siteRoot, dumpFile)

	dumpCmd := fmt.Sprintf("pg_dump -O %s >%s", name, dump)
	if asPostgres {
		dumpCmd = "sudo -u " + PostgresUser + " " + dumpCmd
	}
	if _, err := d.Remote.Run(ctx, dumpCmd); err != nil {
		return err
	}

	sshParam := ""
	if port != "" {
		sshParam = fmt.Sprintf(`-e "ssh -p %s"`, port)
	}
	rsync := join("rsync -z", sshParam, d.rsyncHost()+":"+dump, "./")
	if _, err := d.Local.Run(ctx, rsync); err != nil {
		return err
	}

	drop := d.Local.WarnOnly()
	if _, err := drop.Run(ctx, "dropdb "+name); err != nil {
		return err
	}
	owner := remote.Quote(user)
	if _, err := drop.Run(ctx, "dropuser "+owner); err != nil {
		return err
	}

	steps := []string{
		"createuser -dRS " + owner,
		join("createdb -O", owner, options, name),
		fmt.Sprintf("psql -U %s %s <%s", owner, name, dumpFile),
	}
	for _, step := range steps {
		if _, err := d.Local.Run(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// rsyncHost returns the rsync source host, keeping an explicit user from the
// host string.
func (d *Deployment) rsyncHost() string {
	host, _ := d.Env.Lookup(env.KeyHost, "")
	raw, _ := d.Env.Lookup(env.KeyHostString, "")
	if hs, err := remote.ParseHostString(raw); err == nil {
		if host == "" {
			host = hs.Host
		}
		if hs.User != "" {
			return hs.User + "@" + host
		}
	}
	if host == "" {
		host = d.Remote.Name()
	}
	return host
}
