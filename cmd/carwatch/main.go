package main

import (
	"fmt"
	"os"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

const (
	exitOK              = 0
	exitInternalFailure = 1
	exitDataInvalid     = 2
	exitNotFound        = 3
	exitIOFailure       = 4
	exitInvalidInput    = 6
)

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	setCurrentCorrelationID(newCorrelationID(arguments))
	defer setCurrentCorrelationID("")
	return runDispatch(arguments)
}

func runDispatch(arguments []string) int {
	if len(arguments) < 2 {
		fmt.Println("carwatch", version)
		return exitOK
	}
	if arguments[1] == "--explain" {
		return writeExplain("carwatch reads CARWatch app logs and derives per-session cortisol awakening sampling and awakening times for single participants and whole studies.")
	}

	switch arguments[1] {
	case "logs":
		return runLogs(arguments[2:])
	case "study":
		return runStudy(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		fmt.Println("carwatch", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  carwatch version")
	fmt.Println("  carwatch logs inspect <path> [--tz Europe/Berlin] [--error-handling ignore|warn|raise] [--json] [--explain]")
	fmt.Println("  carwatch logs sessions <path> [--split night|day] [--json] [--explain]")
	fmt.Println("  carwatch logs export <path> --out <file> [--format csv|json|xlsx] [--split night|day] [--no-sampling] [--no-awakening] [--no-evening] [--wide] [--json] [--explain]")
	fmt.Println("  carwatch study export <root> --out <file> [--duplicates raise|keep-first|keep-last] [--concurrency <n>] [export flags] [--json] [--explain]")
	fmt.Println("  carwatch study metadata <root> --field <android_version|app_version|phone_model|phone_manufacturer> [--stats] [--out <file>] [--json] [--explain]")
	fmt.Println("  carwatch study check <study.yaml> [--json] [--explain]")
	fmt.Println("Every command accepts --config <path> (default .carwatch/config.yaml) and --log-level/--log-format.")
}
