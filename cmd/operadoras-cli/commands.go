package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"operadoras/internal/amqp"
	"operadoras/internal/client"
	"operadoras/internal/core"
	"operadoras/internal/query"
)

type publisher interface {
	PublishRefresh(ctx context.Context, reason string) (*amqp.RefreshMessage, error)
}

type app struct {
	facade    *client.Facade
	stdout    io.Writer
	stderr    io.Writer
	publisher func() (publisher, io.Closer, error)
}

type command struct {
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"companies":      {"companies [-page N] [-size N] [-search TEXT]", (*app).companies},
	"company":        {"company ID", (*app).company},
	"cnpj":           {"cnpj CNPJ", (*app).companyByTaxID},
	"expenses":       {"expenses [-with-company] ID", (*app).expenses},
	"stats":          {"stats", (*app).stats},
	"notify-refresh": {"notify-refresh [-reason TEXT]", (*app).notifyRefresh},
}

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(a.stderr, "unknown command %q\n", args[0])
		a.usage()
		return 2
	}
	if err := cmd.run(a, ctx, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(a.stderr, "usage: operadoras-cli", cmd.usage)
			return 2
		}
		fmt.Fprintln(a.stderr, "error:", err)
		return exitCode(err)
	}
	return 0
}

func (a *app) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(a.stderr, "usage: operadoras-cli <command> [flags]")
	for _, name := range names {
		fmt.Fprintln(a.stderr, "  "+commands[name].usage)
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parseFlags reports flag errors as usage errors; fs has already printed them.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// singleArg parses fs and requires exactly one positional argument.
func singleArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := parseFlags(fs, args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", errUsage
	}
	return strings.TrimSpace(fs.Arg(0)), nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) companies(ctx context.Context, args []string) error {
	fs := a.flagSet("companies")
	page := fs.Int("page", query.DefaultPage, "page number, starting at 1")
	size := fs.Int("size", query.DefaultSize, "page size")
	search := fs.String("search", "", "filter by name or CNPJ")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return errUsage
	}

	result, err := a.facade.ListCompanies(ctx, query.Params{Page: *page, Size: *size, Search: *search})
	if err != nil {
		return err
	}
	if result.Data == nil {
		result.Data = []core.Company{}
	}
	return a.print(result)
}

func (a *app) company(ctx context.Context, args []string) error {
	id, err := singleArg(a.flagSet("company"), args)
	if err != nil {
		return err
	}
	c, err := a.facade.GetCompany(ctx, id)
	if err != nil {
		return err
	}
	return a.print(c)
}

func (a *app) companyByTaxID(ctx context.Context, args []string) error {
	cnpj, err := singleArg(a.flagSet("cnpj"), args)
	if err != nil {
		return err
	}
	c, err := a.facade.GetCompanyByTaxID(ctx, cnpj)
	if err != nil {
		return err
	}
	return a.print(c)
}

type companyExpenses struct {
	Company  core.Company   `json:"company"`
	Expenses []core.Expense `json:"expenses"`
}

func (a *app) expenses(ctx context.Context, args []string) error {
	fs := a.flagSet("expenses")
	withCompany := fs.Bool("with-company", false, "include the company record")
	id, err := singleArg(fs, args)
	if err != nil {
		return err
	}

	if !*withCompany {
		expenses, err := a.facade.ListExpenses(ctx, id)
		if err != nil {
			return err
		}
		if expenses == nil {
			expenses = []core.Expense{}
		}
		return a.print(expenses)
	}

	var out companyExpenses
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := a.facade.GetCompany(gctx, id)
		out.Company = c
		return err
	})
	g.Go(func() error {
		e, err := a.facade.ListExpenses(gctx, id)
		out.Expenses = e
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if out.Expenses == nil {
		out.Expenses = []core.Expense{}
	}
	return a.print(out)
}

func (a *app) stats(ctx context.Context, args []string) error {
	fs := a.flagSet("stats")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	records, err := a.facade.ListAggregates(ctx)
	if err != nil {
		return err
	}
	if records == nil {
		records = []core.AggregatedRecord{}
	}
	return a.print(records)
}

func (a *app) notifyRefresh(ctx context.Context, args []string) error {
	fs := a.flagSet("notify-refresh")
	reason := fs.String("reason", "manual", "reason recorded in the message")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if a.publisher == nil {
		return fmt.Errorf("refresh publishing is not configured")
	}
	pub, closer, err := a.publisher()
	if err != nil {
		return core.Wrap(core.KindUnavailable, "notify refresh", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	msg, err := pub.PublishRefresh(ctx, *reason)
	if err != nil {
		return err
	}
	return a.print(msg)
}
