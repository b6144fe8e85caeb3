package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/finboard/fetch"
	"github.com/briangreenhill/finboard/internal/bootstrap"
	"github.com/briangreenhill/finboard/internal/config"
	"github.com/briangreenhill/finboard/pkg/fieldpath"
	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

const version = "v0.1.0"

func main() {
	if err := runCLI(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: dashctl <command> [arguments]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  fetch <url>            Fetch a URL and print its JSON")
	fmt.Fprintln(out, "  fields <url>           List the fields inferred from a URL")
	fmt.Fprintln(out, "  resolve <url> <path>   Print the value at a dotted path")
	fmt.Fprintln(out, "  version                Show the version")
	fmt.Fprintln(out, "  help                   Show this help message")
	fmt.Fprintln(out, "URLs starting with mock:// are served from built-in fixtures.")
	fmt.Fprintln(out, "Environment: FETCH_MAX_RETRIES, FETCH_RETRY_DELAY, FETCH_TIMEOUT, FETCH_ORIGIN, OAUTH_*")
}

func runCLI(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}

	switch args[0] {
	case "help", "--help", "-h":
		usage(out)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintln(out, "dashctl "+version)
		return nil
	case "fetch":
		if len(args) != 2 {
			return errors.New("usage: dashctl fetch <url>")
		}
		res, err := fetchURL(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(out, res.Data)
	case "fields":
		if len(args) != 2 {
			return errors.New("usage: dashctl fields <url>")
		}
		res, err := fetchURL(ctx, args[1])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tTYPE\tSAMPLE")
		for _, f := range res.Fields {
			sample, _ := f.SampleValue.MarshalJSON()
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Path, f.Type, truncate(string(sample), 60))
		}
		return tw.Flush()
	case "resolve":
		if len(args) != 3 {
			return errors.New("usage: dashctl resolve <url> <path>")
		}
		res, err := fetchURL(ctx, args[1])
		if err != nil {
			return err
		}
		v := fieldpath.Resolve(*res.Data, args[2])
		return printJSON(out, &v)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// fetchURL runs one fetch through the configured stack
func fetchURL(ctx context.Context, rawURL string) (fetch.Result, error) {
	cfg, err := config.Load()
	if err != nil {
		return fetch.Result{}, err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl > zerolog.InfoLevel {
		logger = logger.Level(lvl)
	}

	stack, err := bootstrap.New(ctx, cfg, nil, logger)
	if err != nil {
		return fetch.Result{}, err
	}
	defer stack.Close() //nolint:errcheck

	res := stack.Coordinator.Fetch(ctx, rawURL, nil)
	if !res.Success {
		return res, fmt.Errorf("fetch %s: %s", rawURL, res.Error)
	}
	return res, nil
}

func printJSON(out io.Writer, v *jsonvalue.Value) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, buf.String())
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
