package schema

import (
	"fmt"
	"sort"
)

// Table names of the hiring data model
const (
	TableDepartments    = "departments"
	TableJobs           = "jobs"
	TableHiredEmployees = "hired_employees"
)

// Departments returns the departments table schema
func Departments() *TableSchema {
	return NewTableSchema(TableDepartments,
		Column{Name: "id", Type: TypeInt, Key: true},
		Column{Name: "name", Type: TypeString},
	)
}

// Jobs returns the jobs table schema
func Jobs() *TableSchema {
	return NewTableSchema(TableJobs,
		Column{Name: "id", Type: TypeInt, Key: true},
		Column{Name: "name", Type: TypeString},
	)
}

// HiredEmployees returns the hired_employees table schema
func HiredEmployees() *TableSchema {
	ts := NewTableSchema(TableHiredEmployees,
		Column{Name: "id", Type: TypeInt, Key: true},
		Column{Name: "name", Type: TypeString},
		Column{Name: "datetime", Type: TypeDate},
		Column{Name: "department_id", Type: TypeInt},
		Column{Name: "job_id", Type: TypeInt},
	)
	ts.References = []Reference{
		{Column: "department_id", Table: TableDepartments, RefColumn: "id"},
		{Column: "job_id", Table: TableJobs, RefColumn: "id"},
	}
	return ts
}

// Catalog resolves table schemas by name
type Catalog struct {
	tables map[string]*TableSchema
}

// NewCatalog builds a catalog from the given schemas
func NewCatalog(tables ...*TableSchema) (*Catalog, error) {
	c := &Catalog{tables: make(map[string]*TableSchema, len(tables))}
	for _, ts := range tables {
		if err := ts.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.tables[ts.Name]; exists {
			return nil, fmt.Errorf("table %s registered twice", ts.Name)
		}
		c.tables[ts.Name] = ts
	}
	return c, nil
}

// DefaultCatalog returns the catalog of the hiring data model
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(Departments(), Jobs(), HiredEmployees())
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns a copy of the named table schema
func (c *Catalog) Lookup(name string) (*TableSchema, error) {
	ts, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return ts.Clone(), nil
}

// Names returns the registered table names sorted alphabetically
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependent is a reference held by another table onto the one asked about
type Dependent struct {
	Table string
	Reference
}

// Dependents returns the references other tables hold onto name, sorted by table
func (c *Catalog) Dependents(name string) []Dependent {
	var deps []Dependent
	for _, table := range c.Names() {
		if table == name {
			continue
		}
		for _, ref := range c.tables[table].References {
			if ref.Table == name {
				deps = append(deps, Dependent{Table: table, Reference: ref})
			}
		}
	}
	return deps
}

// Ordered returns the schemas with referenced tables before the tables referencing them.
// Ties are broken by name so the order is stable.
func (c *Catalog) Ordered() ([]*TableSchema, error) {
	var ordered []*TableSchema
	state := make(map[string]int) // 0 unvisited, 1 visiting, 2 done

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 1:
			return fmt.Errorf("reference cycle through table %s", name)
		case 2:
			return nil
		}
		ts, ok := c.tables[name]
		if !ok {
			return fmt.Errorf("unknown referenced table %q", name)
		}
		state[name] = 1
		deps := make([]string, 0, len(ts.References))
		for _, ref := range ts.References {
			if ref.Table != name {
				deps = append(deps, ref.Table)
			}
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = 2
		ordered = append(ordered, ts.Clone())
		return nil
	}

	for _, name := range c.Names() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
