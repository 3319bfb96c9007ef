package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Task is a named operation invokable from the command line.
type Task struct {
	Name        string
	Aliases     []string
	Description string
	// Variadic tasks accept positional arguments; others reject them.
	Variadic bool
	Run      func(ctx context.Context, d *Deployment, args []string) error
}

// Invoke runs the task on d with args.
func (t Task) Invoke(ctx context.Context, d *Deployment, args []string) error {
	if !t.Variadic && len(args) > 0 {
		return fmt.Errorf("task %s takes no arguments, got %d", t.Name, len(args))
	}
	return t.Run(ctx, d, args)
}

func simple(fn func(*Deployment, context.Context) error) func(context.Context, *Deployment, []string) error {
	return func(ctx context.Context, d *Deployment, _ []string) error {
		return fn(d, ctx)
	}
}

func forward(command string) func(context.Context, *Deployment, []string) error {
	return func(ctx context.Context, d *Deployment, args []string) error {
		return d.Manage(ctx, append([]string{command}, args...)...)
	}
}

var registry = []Task{
	{Name: "bootstrap", Description: "Install packages, project, PostgreSQL and supervisor configuration",
		Run: simple((*Deployment).Bootstrap)},
	{Name: "install_debs", Description: "Install OS packages for the host's roles",
		Run: simple((*Deployment).InstallDebs)},
	{Name: "create_project_root", Description: "Create the project root owned by the connecting user",
		Run: simple((*Deployment).CreateProjectRoot)},
	{Name: "create_virtualenv", Description: "Create the project virtualenv",
		Run: simple((*Deployment).CreateVirtualenv)},
	{Name: "install_project", Description: "Create project root and virtualenv, install requirements",
		Run: simple((*Deployment).InstallProject)},
	{Name: "update_python_packages", Description: "Update main project repository and its Python dependencies",
		Run: simple((*Deployment).UpdatePythonPackages)},
	{Name: "update_code", Description: "Update the installed project code only, then restart",
		Run: simple((*Deployment).UpdateCode)},
	{Name: "update_code_checkout", Description: "Pull a direct project checkout, then restart",
		Run: simple((*Deployment).UpdateCodeCheckout)},
	{Name: "update", Description: "Update Python dependencies, then restart",
		Run: simple((*Deployment).Update)},
	{Name: "restart", Aliases: []string{"restart_django"}, Description: "Restart application processes",
		Run: simple((*Deployment).Restart)},
	{Name: "pull_repo", Description: "Install the newest revision of the project repository",
		Run: simple((*Deployment).PullRepo)},
	{Name: "create_db_user", Description: "Create the database role and set its password",
		Run: simple((*Deployment).CreateDBUser)},
	{Name: "create_db", Description: "Create the project database",
		Run: simple((*Deployment).CreateDB)},
	{Name: "configure_postgresql", Description: "Allow password logins for the project database",
		Run: simple((*Deployment).ConfigurePostgreSQL)},
	{Name: "clone_db", Description: "Clone the production database to the local machine",
		Run: simple((*Deployment).CloneDB)},
	{Name: "manage", Variadic: true, Description: "Run a management command with arguments passed verbatim",
		Run: func(ctx context.Context, d *Deployment, args []string) error {
			return d.Manage(ctx, args...)
		}},
	{Name: "collectstatic", Description: "Collect static files",
		Run: simple((*Deployment).CollectStatic)},
	{Name: "syncdb", Variadic: true, Description: "Shorthand for manage:syncdb", Run: forward("syncdb")},
	{Name: "migrate", Variadic: true, Description: "Shorthand for manage:migrate", Run: forward("migrate")},
	{Name: "configure_nginx", Description: "Install and enable nginx site and media site configuration",
		Run: simple((*Deployment).ConfigureNginx)},
	{Name: "configure_supervisor", Description: "Install supervisor program configuration and reload",
		Run: simple((*Deployment).ConfigureSupervisor)},
}

// All returns every registered task sorted by name.
func All() []Task {
	out := append([]Task{}, registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a task by name or alias.
func Lookup(name string) (Task, bool) {
	for _, t := range registry {
		if t.Name == name {
			return t, true
		}
		for _, a := range t.Aliases {
			if a == name {
				return t, true
			}
		}
	}
	return Task{}, false
}

// Invocation is one task named on the command line with its arguments.
type Invocation struct {
	Name string
	Args []string
}

// String renders the invocation in command-line form.
func (i Invocation) String() string {
	if len(i.Args) == 0 {
		return i.Name
	}
	escaped := make([]string, len(i.Args))
	for n, a := range i.Args {
		escaped[n] = strings.ReplaceAll(a, ",", `\,`)
	}
	return i.Name + ":" + strings.Join(escaped, ",")
}

// ParseInvocation parses "name" or "name:arg,arg". A backslash escapes a
// comma inside an argument.
func ParseInvocation(s string) (Invocation, error) {
	name, rest, hasArgs := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Invocation{}, fmt.Errorf("invalid task %q: empty name", s)
	}
	inv := Invocation{Name: name}
	if !hasArgs || rest == "" {
		return inv, nil
	}

	var cur strings.Builder
	for i := 0; i < len(rest); i++ {
		switch c := rest[i]; {
		case c == '\\' && i+1 < len(rest) && rest[i+1] == ',':
			cur.WriteByte(',')
			i++
		case c == ',':
			inv.Args = append(inv.Args, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	inv.Args = append(inv.Args, cur.String())
	return inv, nil
}

// Resolve parses and looks up each invocation, failing on the first unknown
// task.
func Resolve(specs []string) ([]Invocation, []Task, error) {
	invs := make([]Invocation, 0, len(specs))
	found := make([]Task, 0, len(specs))
	for _, s := range specs {
		inv, err := ParseInvocation(s)
		if err != nil {
			return nil, nil, err
		}
		t, ok := Lookup(inv.Name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown task %q (run 'flax list' to see available tasks)", inv.Name)
		}
		if !t.Variadic && len(inv.Args) > 0 {
			return nil, nil, fmt.Errorf("task %s takes no arguments", t.Name)
		}
		invs = append(invs, inv)
		found = append(found, t)
	}
	return invs, found, nil
}
