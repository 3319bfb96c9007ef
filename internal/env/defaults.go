package env

import (
	"os"
	"path"
)

// Configuration keys with registered default rules.
const (
	KeyProjectName          = "project_name"
	KeyProjectRoot          = "project_root"
	KeySiteRoot             = "site_root"
	KeySiteBase             = "site_base"
	KeyVirtualenvRoot       = "virtualenv_root"
	KeyDBUser               = "db_user"
	KeyDBName               = "db_name"
	KeyDBOptions            = "db_options"
	KeyDBPassword           = "db_password"
	KeyPassword             = "password"
	KeySudoPassword         = "sudo_password"
	KeyPipArgs              = "pip_args"
	KeyPipDownloadCache     = "pip_download_cache"
	KeyBranch               = "branch"
	KeyRepository           = "repository"
	KeyProjectEgg           = "project_egg"
	KeyWebserver            = "webserver"
	KeyProcessControl       = "process_control"
	KeyPostgreSQLVersion    = "postgresql_version"
	KeyPgHba                = "pg_hba"
	KeyNginxAvailable       = "nginx_available"
	KeyNginxEnabled         = "nginx_enabled"
	KeySupervisorConfDir    = "supervisor_conf_dir"
	KeySupervisorReload     = "supervisor_reload"
	KeyLogRoot              = "log_root"
	KeyLogOwner             = "log_owner"
	KeyGunicornBind         = "gunicorn_bind"
	KeyServerName           = "server_name"
	KeyWSGIModule           = "wsgi_module"
	KeyRequirementsDir      = "requirements_dir"
	KeyRequirementsMode     = "requirements_mode"
	KeyRequirementsOptional = "requirements_optional"
	KeyCloneDBSudo          = "clone_db_sudo"
	KeyDjangoSettingsModule = "django_settings_module"
	KeyMediaSites           = "media_sites"
	KeyHost                 = "host"
	KeyHostString           = "host_string"
	KeyUser                 = "user"
	KeyPort                 = "port"
	KeyTemplateDir          = "template_dir"
)

// RegisterDefaults installs the standard deployment default rules on e.
func RegisterDefaults(e *Env) {
	e.SetDefault(KeyProjectRoot, alias(KeySiteRoot))
	e.SetDefault(KeySiteRoot, func(e *Env) (any, error) {
		base, err := e.String(KeySiteBase)
		if err != nil {
			return nil, err
		}
		name, err := e.String(KeyProjectName)
		if err != nil {
			return nil, err
		}
		return path.Join(base, name), nil
	})
	e.SetDefault(KeySiteBase, constant("/www"))
	e.SetDefault(KeyVirtualenvRoot, format("{project_root}/venv"))
	e.SetDefault(KeyDBUser, alias(KeyProjectName))
	e.SetDefault(KeyDBName, alias(KeyProjectName))
	e.SetDefault(KeyDBOptions, constant(""))
	e.SetDefault(KeyPipArgs, constant(""))
	e.SetDefault(KeyPipDownloadCache, constant("~/.pip/cache"))
	e.SetDefault(KeyBranch, constant("master"))
	e.SetDefault(KeyProjectEgg, format("git+ssh://{repository}@{branch}#egg={project_name}"))
	e.SetDefault(KeyWebserver, constant("gunicorn"))
	e.SetDefault(KeyProcessControl, constant("supervisor"))
	e.SetDefault(KeyPostgreSQLVersion, constant("8.4"))
	e.SetDefault(KeyPgHba, format("/etc/postgresql/{postgresql_version}/main/pg_hba.conf"))
	e.SetDefault(KeyNginxAvailable, constant("/etc/nginx/sites-available"))
	e.SetDefault(KeyNginxEnabled, constant("/etc/nginx/sites-enabled"))
	e.SetDefault(KeySupervisorConfDir, constant("/etc/supervisor/conf.d"))
	e.SetDefault(KeySupervisorReload, constant("reload"))
	e.SetDefault(KeyLogRoot, format("/var/log/www/{project_name}"))
	e.SetDefault(KeyLogOwner, constant("www-data"))
	e.SetDefault(KeyGunicornBind, constant("127.0.0.1:8000"))
	e.SetDefault(KeyServerName, alias(KeyHost))
	e.SetDefault(KeyWSGIModule, format("{project_name}.wsgi:application"))
	e.SetDefault(KeyRequirementsDir, constant("requirements"))
	e.SetDefault(KeyRequirementsMode, constant("directory"))
	e.SetDefault(KeyRequirementsOptional, constant(false))
	e.SetDefault(KeyCloneDBSudo, constant(false))
	e.SetDefault(KeyPort, constant(""))
	e.SetDefault(KeyUser, func(*Env) (any, error) {
		return os.Getenv("USER"), nil
	})
}

func constant(v any) DefaultFunc {
	return func(*Env) (any, error) { return v, nil }
}

func alias(key string) DefaultFunc {
	return func(e *Env) (any, error) { return e.String(key) }
}

func format(tmpl string) DefaultFunc {
	return func(e *Env) (any, error) { return e.Format(tmpl) }
}
