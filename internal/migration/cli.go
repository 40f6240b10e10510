package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// Service is the set of manager operations the CLI drives.
type Service interface {
	ListMigrations(ctx context.Context, module string) (*ListResult, error)
	GetLastMigration(ctx context.Context, module string) (LastMigration, error)
	Create(ctx context.Context, module, label string) (string, error)
	GenerateMigration(ctx context.Context, opts GenerateOptions) (*GenerateResult, error)
	Up(ctx context.Context, module, to string) (*Result, error)
	Down(ctx context.Context, module, to string) (*Result, error)
	Rollback(ctx context.Context, module string, step int) (*Result, error)
	Fake(ctx context.Context, module, to string) (*Result, error)
}

var _ Service = (*Manager)(nil)

// NoChangesMessage is printed when generation finds nothing to do.
const NoChangesMessage = "Your database has no changes from last revision!"

// CLI formats manager results for a terminal.
type CLI struct {
	svc    Service
	output io.Writer
}

// NewCLI creates a new CLI instance
func NewCLI(svc Service) *CLI {
	return &CLI{
		svc:    svc,
		output: os.Stdout,
	}
}

// SetOutput sets the output writer for CLI messages
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// RunList prints every migration of a module with its classification.
func (c *CLI) RunList(ctx context.Context, module string) error {
	c.moduleHeader(module)
	list, err := c.svc.ListMigrations(ctx, module)
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	for _, w := range list.Warnings {
		fmt.Fprintf(c.output, "Warning: %s\n", w)
	}

	if len(list.Migrations) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	fmt.Fprintln(c.output, "Legend: L loaded, R ready, C conflict, LN loaded without file, * changed since applied")
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	for _, s := range list.Migrations {
		mark := ""
		if s.Modified {
			mark = " *"
		}
		fmt.Fprintf(w, "%s\t%s%s\n", s.Type.Prefix(), s.Name, mark)
	}
	w.Flush()

	fmt.Fprintln(c.output)
	fmt.Fprintf(c.output, "Total: %d, Loaded: %d, Ready: %d, Conflict: %d, Missing: %d\n",
		len(list.Migrations), list.Count(Loaded), list.Count(Ready),
		list.Count(Conflict), list.Count(NotExist))
	return nil
}

// RunCurrent prints the last applied migration.
func (c *CLI) RunCurrent(ctx context.Context, module string) error {
	c.moduleHeader(module)
	last, err := c.svc.GetLastMigration(ctx, module)
	if err != nil {
		return fmt.Errorf("failed to get current migration: %w", err)
	}
	if last.None() {
		fmt.Fprintln(c.output, "None")
		return nil
	}
	fmt.Fprintf(c.output, "Current migration is: %s\n", last.Migration)
	return nil
}

// RunCreate scaffolds an empty migration.
func (c *CLI) RunCreate(ctx context.Context, module, label string) error {
	c.moduleHeader(module)
	path, err := c.svc.Create(ctx, module, label)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Migration created: %s\n", path)
	return nil
}

// RunGenerate writes a migration from the schema diff.
func (c *CLI) RunGenerate(ctx context.Context, opts GenerateOptions) error {
	c.moduleHeader(opts.Module)
	opts.DryRun = false
	res, err := c.svc.GenerateMigration(ctx, opts)
	if err != nil {
		return err
	}
	if res.Path == "" {
		fmt.Fprintln(c.output, NoChangesMessage)
		return nil
	}
	fmt.Fprintf(c.output, "Migration generated: %s\n", res.Path)
	return nil
}

// RunDiff prints the queries a generated migration would contain.
func (c *CLI) RunDiff(ctx context.Context, opts GenerateOptions) error {
	c.moduleHeader(opts.Module)
	opts.DryRun = true
	res, err := c.svc.GenerateMigration(ctx, opts)
	if err != nil {
		return err
	}
	if res.NoChanges() {
		fmt.Fprintln(c.output, NoChangesMessage)
		return nil
	}
	fmt.Fprintf(c.output, "Queries (%d) :\n", len(res.Diff.Up))
	for _, q := range res.Diff.Up {
		fmt.Fprintf(c.output, "%s;\n", q)
	}
	return nil
}

// RunUp applies pending migrations.
func (c *CLI) RunUp(ctx context.Context, module, to string) error {
	c.moduleHeader(module)
	return c.printResult(c.svc.Up(ctx, module, to))
}

// RunDown reverts applied migrations.
func (c *CLI) RunDown(ctx context.Context, module, to string) error {
	c.moduleHeader(module)
	return c.printResult(c.svc.Down(ctx, module, to))
}

// RunRollback reverts the last step migrations.
func (c *CLI) RunRollback(ctx context.Context, module string, step int) error {
	c.moduleHeader(module)
	return c.printResult(c.svc.Rollback(ctx, module, step))
}

// RunFake records migrations without running them.
func (c *CLI) RunFake(ctx context.Context, module, to string) error {
	c.moduleHeader(module)
	return c.printResult(c.svc.Fake(ctx, module, to))
}

// moduleHeader names the module a command is scoped to.
func (c *CLI) moduleHeader(module string) {
	if module != "" {
		fmt.Fprintf(c.output, "Only for module %q:\n", module)
	}
}

// printResult prints the completed steps, including those committed before a
// failure.
func (c *CLI) printResult(res *Result, err error) error {
	if res != nil {
		for _, msg := range res.Messages {
			fmt.Fprintln(c.output, msg)
		}
	}
	return err
}
