package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/mcp"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/version"
)

func newFlagSet(name string, errOut io.Writer, common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	common.register(fs)
	return fs
}

// withApp parses flags, opens the app and runs fn.
func withApp(ctx context.Context, fs *flag.FlagSet, errOut io.Writer, common *commonFlags, args []string, fn func(*app) error) (err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	a, err := newApp(ctx, errOut, *common)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()
	return fn(a)
}

func readDocument(m *version.Manager, path string) error {
	f, err := version.FormatFromPath(path)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = m.Import(file, f)
	return err
}

func decodeFile(path string) (version.Document, error) {
	f, err := version.FormatFromPath(path)
	if err != nil {
		return version.Document{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return version.Document{}, err
	}
	defer file.Close()
	return version.Decode(file, f)
}

func cmdRun(ctx context.Context, out, errOut io.Writer, args []string) error {
	var common commonFlags
	fs := newFlagSet("run", errOut, &common)
	file := fs.String("file", "", "workflow document to run")
	id := fs.String("id", "", "stored workflow to run")
	payload := fs.String("payload", "", "JSON object passed to entry nodes")

	return withApp(ctx, fs, errOut, &common, args, func(a *app) error {
		if (*file == "") == (*id == "") {
			return errors.New("run: exactly one of -file or -id is required")
		}
		var data map[string]any
		if *payload != "" {
			if err := json.Unmarshal([]byte(*payload), &data); err != nil {
				return fmt.Errorf("run: parse payload: %w", err)
			}
		}

		g := graph.New()
		var stats flowcanvas.StatsRecorder
		wfID := *id
		if *file != "" {
			// Ad hoc documents run without being stored.
			doc, err := decodeFile(*file)
			if err != nil {
				return err
			}
			if err := g.Replace(doc.Snapshot()); err != nil {
				return err
			}
			wfID = doc.Metadata.ID
		} else {
			m := a.manager(g, wfID)
			defer m.Close(context.WithoutCancel(ctx))
			if err := m.Load(ctx); err != nil {
				return err
			}
			stats = m
		}

		report, err := a.engine(stats).Run(ctx, g.Snapshot(),
			flowcanvas.WithWorkflowID(wfID),
			flowcanvas.WithPayload(data),
		)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if report.Status != flowcanvas.RunCompleted {
			return fmt.Errorf("run %s finished with status %s", report.RunID, report.Status)
		}
		return nil
	})
}

func cmdImport(ctx context.Context, out, errOut io.Writer, args []string) error {
	var common commonFlags
	fs := newFlagSet("import", errOut, &common)
	file := fs.String("file", "", "workflow document (.json, .yaml)")
	id := fs.String("id", "", "workflow id to store under")
	author := fs.String("author", "", "version author")
	label := fs.String("label", "imported", "version label")

	return withApp(ctx, fs, errOut, &common, args, func(a *app) error {
		if *file == "" || *id == "" {
			return errors.New("import: -file and -id are required")
		}
		m := a.manager(graph.New(), *id)
		defer m.Close(ctx)
		if err := readDocument(m, *file); err != nil {
			return err
		}
		v, err := m.SaveVersion(ctx, *author, *label)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %s as version %d\n", *id, v.Number)
		return nil
	})
}

func cmdExport(ctx context.Context, out, errOut io.Writer, args []string) error {
	var common commonFlags
	fs := newFlagSet("export", errOut, &common)
	id := fs.String("id", "", "workflow id")
	path := fs.String("out", "", "output file; stdout as JSON when empty")

	return withApp(ctx, fs, errOut, &common, args, func(a *app) error {
		if *id == "" {
			return errors.New("export: -id is required")
		}
		m := a.manager(graph.New(), *id)
		defer m.Close(ctx)
		if err := m.Load(ctx); err != nil {
			return err
		}
		if *path == "" {
			return m.Export(out, version.FormatJSON)
		}
		f, err := version.FormatFromPath(*path)
		if err != nil {
			return err
		}
		file, err := os.Create(*path)
		if err != nil {
			return err
		}
		if err := m.Export(file, f); err != nil {
			file.Close()
			return err
		}
		return file.Close()
	})
}

func cmdHistory(ctx context.Context, out, errOut io.Writer, args []string) error {
	var common commonFlags
	fs := newFlagSet("history", errOut, &common)
	id := fs.String("id", "", "workflow id")

	return withApp(ctx, fs, errOut, &common, args, func(a *app) error {
		if *id == "" {
			return errors.New("history: -id is required")
		}
		m := a.manager(graph.New(), *id)
		defer m.Close(ctx)
		if err := m.Load(ctx); err != nil {
			return err
		}
		meta := m.Metadata()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tLABEL\tAUTHOR\tNODES\tUPDATED")
		for _, v := range meta.Versions {
			mark := ""
			if v.Number == meta.CurrentVersion {
				mark = "*"
			}
			fmt.Fprintf(tw, "%d%s\t%s\t%s\t%d\t%s\n", v.Number, mark, v.Label, v.Author, len(v.Nodes), v.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "\nruns: %d  success rate: %.0f%%\n", meta.Stats.TotalRuns, meta.Stats.SuccessRate*100)
		return tw.Flush()
	})
}

func cmdList(ctx context.Context, out, errOut io.Writer, args []string) error {
	var common commonFlags
	fs := newFlagSet("list", errOut, &common)

	return withApp(ctx, fs, errOut, &common, args, func(a *app) error {
		entries, err := version.List(ctx, a.store, a.tenant.Namespace())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.Name, e.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func cmdDelete(ctx context.Context, out, errOut io.Writer, args []string) error {
	var common commonFlags
	fs := newFlagSet("delete", errOut, &common)
	id := fs.String("id", "", "workflow id")

	return withApp(ctx, fs, errOut, &common, args, func(a *app) error {
		if *id == "" {
			return errors.New("delete: -id is required")
		}
		if err := version.Delete(ctx, a.store, a.tenant.Namespace(), *id); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", *id)
		return nil
	})
}

// cmdMCP serves the tool set on stdin/stdout. Logs go to errOut so the
// protocol stream stays clean.
func cmdMCP(ctx context.Context, out, errOut io.Writer, args []string) error {
	var common commonFlags
	fs := newFlagSet("mcp", errOut, &common)
	tenant := fs.String("tenant", "", "tenant id for requests without one (default: -org)")

	return withApp(ctx, fs, errOut, &common, args, func(a *app) error {
		opts := []mcp.Option{mcp.WithLogger(a.logger)}
		if *tenant == "" {
			*tenant = common.orgID
		}
		if *tenant != "" {
			opts = append(opts, mcp.WithDefaultTenant(*tenant, common.userID))
		}
		return mcp.NewServer(a.tools(), opts...).Serve(ctx, stdin, out)
	})
}
