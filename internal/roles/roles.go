// Package roles maps hosts to deployment roles and roles to the OS packages
// they require.
package roles

import (
	"sort"
)

// Deployment role identifiers.
const (
	DBServer  = "dbserver"
	WebServer = "webserver"
	AppServer = "appserver"
)

// DefaultPackages returns the packages each standard role installs.
func DefaultPackages() map[string][]string {
	return map[string][]string{
		DBServer:  {"postgresql"},
		WebServer: {"nginx"},
		AppServer: {
			"git",
			"python",
			"python-psycopg2",
			"python-virtualenv",
			"subversion",
			"supervisor",
		},
	}
}

// Table holds the role definitions for one run. It is built once and only
// read afterwards.
type Table struct {
	hosts    map[string]map[string]struct{}
	packages map[string]map[string]struct{}
}

// New builds a table from role → hosts and role → packages mappings.
// Duplicate entries collapse. A nil packages map uses DefaultPackages.
func New(roledefs, packages map[string][]string) *Table {
	if packages == nil {
		packages = DefaultPackages()
	}
	return &Table{
		hosts:    toSets(roledefs),
		packages: toSets(packages),
	}
}

// WithPackages merges overrides over DefaultPackages; a role present in
// overrides replaces the default list for that role entirely.
func WithPackages(overrides map[string][]string) map[string][]string {
	merged := DefaultPackages()
	for role, pkgs := range overrides {
		merged[role] = pkgs
	}
	return merged
}

// Roles returns all defined role names in sorted order.
func (t *Table) Roles() []string {
	seen := make(map[string]struct{})
	for r := range t.hosts {
		seen[r] = struct{}{}
	}
	for r := range t.packages {
		seen[r] = struct{}{}
	}
	return sortedKeys(seen)
}

// RolesFor returns the roles whose host list contains any of names, sorted.
// A host may be listed by bare name or by full host string, so callers pass
// both. A host in no role yields an empty, non-nil slice.
func (t *Table) RolesFor(names ...string) []string {
	roles := make(map[string]struct{})
	for role, hosts := range t.hosts {
		for _, name := range names {
			if _, ok := hosts[name]; ok {
				roles[role] = struct{}{}
			}
		}
	}
	return sortedKeys(roles)
}

// PackagesFor returns the lexicographically sorted union of the packages
// required by every role matched by RolesFor(names...). A host in no role
// yields an empty slice.
func (t *Table) PackagesFor(names ...string) []string {
	pkgs := make(map[string]struct{})
	for _, role := range t.RolesFor(names...) {
		for p := range t.packages[role] {
			pkgs[p] = struct{}{}
		}
	}
	return sortedKeys(pkgs)
}

// HostsFor returns the hosts of the given roles in first-seen order, without
// duplicates. Within one role hosts are sorted. Unknown roles are reported in
// the second return value.
func (t *Table) HostsFor(roleNames ...string) (hosts []string, unknown []string) {
	seen := make(map[string]struct{})
	for _, role := range roleNames {
		set, ok := t.hosts[role]
		if !ok {
			unknown = append(unknown, role)
			continue
		}
		for _, h := range sortedKeys(set) {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			hosts = append(hosts, h)
		}
	}
	return hosts, unknown
}

func toSets(m map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(m))
	for k, items := range m {
		set := make(map[string]struct{}, len(items))
		for _, item := range items {
			set[item] = struct{}{}
		}
		out[k] = set
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
