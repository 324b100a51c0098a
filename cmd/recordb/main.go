// Command recordb is a thin CLI wrapper over the recordb library: load
// a schema, map record-log file identifiers to tables, ingest from
// stdin or an export file, then either run one query, drop into an
// interactive shell, or serve queries over TCP.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/leengari/recordb"
	"github.com/leengari/recordb/internal/config"
	"github.com/leengari/recordb/internal/logging"
	"github.com/leengari/recordb/internal/network"
	"github.com/leengari/recordb/internal/recordlog"
	"github.com/leengari/recordb/internal/repl"
	"github.com/leengari/recordb/internal/schemaidl"
)

func main() {
	app := &cli.App{
		Name:  "recordb",
		Usage: "query an append-only record log with SQL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schema", Required: true, Usage: "path to a JSON schema document"},
			&cli.StringSliceFlag{Name: "map", Usage: "fileid=table mappings, repeatable"},
			&cli.StringFlag{Name: "load", Usage: "path to an export file to load before serving"},
			&cli.StringFlag{Name: "export", Usage: "path to write an export to on exit"},
			&cli.StringFlag{Name: "query", Usage: "run one query non-interactively and exit"},
			&cli.BoolFlag{Name: "stats", Usage: "print per-table tombstone counts and exit"},
			&cli.BoolFlag{Name: "server", Usage: "serve queries over TCP instead of stdin"},
			&cli.IntFlag{Name: "port", Value: 4444, Usage: "TCP port when --server is set"},
			&cli.IntFlag{Name: "log-buffer-capacity", Value: 4096},
			&cli.IntFlag{Name: "statement-cache-size", Value: 100},
			&cli.StringFlag{Name: "seq-endpoint"},
			&cli.StringFlag{Name: "durability-log"},
			&cli.BoolFlag{Name: "metrics"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("recordb: fatal", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	settings := config.Settings{
		LogBufferCapacity:  c.Int("log-buffer-capacity"),
		StatementCacheSize: c.Int("statement-cache-size"),
		SeqEndpoint:        c.String("seq-endpoint"),
		DurabilityLogPath:  c.String("durability-log"),
		MetricsEnabled:     c.Bool("metrics"),
	}

	logger, closeFn := logging.SetupLogger(logging.Options{SeqEndpoint: settings.SeqEndpoint})
	defer closeFn()
	slog.SetDefault(logger)

	schema, err := schemaidl.LoadFromFile(c.String("schema"))
	if err != nil {
		return err
	}

	var opts []recordb.Option
	opts = append(opts,
		recordb.WithLogOptions(recordlog.WithInitialCapacity(settings.LogBufferCapacity)),
		recordb.WithStatementCacheSize(settings.StatementCacheSize),
	)
	if settings.DurabilityLogPath != "" {
		opts = append(opts, recordb.WithDurabilityLog(settings.DurabilityLogPath))
	}
	if settings.MetricsEnabled {
		opts = append(opts, recordb.WithMetrics())
	}

	db, err := recordb.NewDatabase(*schema, opts...)
	if err != nil {
		return fmt.Errorf("recordb: opening database: %w", err)
	}
	defer db.Close()

	for _, mapping := range c.StringSlice("map") {
		fileID, table, ok := strings.Cut(mapping, "=")
		if !ok || len(fileID) != 4 {
			return fmt.Errorf("recordb: invalid --map %q, want fileid=table with a 4-byte fileid", mapping)
		}
		if err := db.RegisterFileID(recordlog.FileID([]byte(fileID)), table); err != nil {
			return err
		}
	}
	if err := db.CreateUnifiedViews(); err != nil {
		return err
	}

	if loadPath := c.String("load"); loadPath != "" {
		if err := db.LoadAndRebuildFromFile(loadPath); err != nil {
			return fmt.Errorf("recordb: loading %q: %w", loadPath, err)
		}
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("recordb: reading stdin: %w", err)
		}
		if len(data) > 0 {
			if _, _, err := db.Ingest(data); err != nil {
				return fmt.Errorf("recordb: ingesting stdin: %w", err)
			}
		}
	}

	if exportPath := c.String("export"); exportPath != "" {
		defer func() {
			if err := db.ExportToFile(exportPath); err != nil {
				slog.Error("recordb: export failed", "path", exportPath, "error", err)
			}
		}()
	}

	switch {
	case c.Bool("stats"):
		return printStats(db, schema)
	case c.String("query") != "":
		result, err := db.Query(c.String("query"))
		if err != nil {
			return err
		}
		repl.PrintResult(os.Stdout, result)
		return nil
	case c.Bool("server"):
		return network.Start(c.Int("port"), db)
	default:
		repl.Start(db, os.Stdin, os.Stdout)
		return nil
	}
}

func printStats(db *recordb.Database, schema *schemaidl.DatabaseSchema) error {
	for name := range schema.Tables {
		count, err := db.DeletedCount(name)
		if err != nil {
			fmt.Printf("%s: tombstone count unavailable: %v\n", name, err)
			continue
		}
		fmt.Printf("%s: %d tombstoned rows\n", name, count)
	}
	return nil
}
