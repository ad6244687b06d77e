package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/innowave/analytiqa/internal/cli"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "report":
		if len(os.Args) < 3 || os.Args[2] != "results" {
			fmt.Fprintf(os.Stderr, "Usage: analytiqactl report results [flags] <junit-xml-files...>\n")
			os.Exit(1)
		}
		cmdReportResults(os.Args[3:])
	case "import":
		cmdImport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: analytiqactl <command>

Commands:
  report results       Report JUnit results as script run results
  import               Upload a test case worksheet export
`)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func cmdReportResults(args []string) {
	fs := flag.NewFlagSet("report results", flag.ExitOnError)
	r := cli.ResultsReport{}
	fs.StringVar(&r.Server, "server", os.Getenv("ANALYTIQA_SERVER"), "analytiqa server URL")
	fs.StringVar(&r.User, "user", os.Getenv("ANALYTIQA_USER"), "acting user email")
	fs.Int64Var(&r.ScriptID, "script-id", 0, "script ID")
	fs.StringVar(&r.RunID, "run-id", "", "CI run identifier (default: timestamp)")
	fs.Parse(args)

	r.Files = fs.Args()

	if r.Server == "" || r.User == "" || r.ScriptID == 0 || len(r.Files) == 0 {
		fmt.Fprintf(os.Stderr, "Required: --server, --user, --script-id, <junit-xml-files...>\n")
		fs.PrintDefaults()
		os.Exit(1)
	}

	if err := cli.ReportResults(r); err != nil {
		log.Fatalf("report results: %v", err)
	}
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	r := cli.ImportRequest{}
	fs.StringVar(&r.Server, "server", envOrDefault("ANALYTIQA_SERVER", "http://localhost:8080"), "analytiqa server URL")
	fs.StringVar(&r.User, "user", os.Getenv("ANALYTIQA_USER"), "acting user email")
	fs.BoolVar(&r.Wait, "wait", true, "wait for the import to finish")
	fs.DurationVar(&r.PollInterval, "poll-interval", time.Second, "job poll interval")
	fs.Parse(args)

	if r.User == "" || fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Required: --user, <worksheet.xlsx>\n")
		fs.PrintDefaults()
		os.Exit(1)
	}
	r.File = fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.ImportWorksheet(ctx, r); err != nil {
		log.Fatalf("import: %v", err)
	}
}
