package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/davidahmann/plumb/core/bundle"
)

type fixtureOutput struct {
	OK            bool     `json:"ok"`
	BundleID      string   `json:"bundle_id,omitempty"`
	RunID         string   `json:"run_id,omitempty"`
	Root          string   `json:"root,omitempty"`
	IncludedPaths []string `json:"included_paths,omitempty"`
	errorEnvelope
}

func runFixture(arguments []string) int {
	if len(arguments) == 0 {
		printFixtureUsage()
		return exitInvalidInput
	}
	switch arguments[0] {
	case "freeze":
		return runFixtureFreeze(arguments[1:])
	case "seed":
		return runFixtureSeed(arguments[1:])
	default:
		printFixtureUsage()
		return exitInvalidInput
	}
}

func runFixtureFreeze(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Snapshot a run into an immutable fixture bundle: the required file set plus a bundle.json descriptor with sorted included_paths and no_web asserted.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"manifest": true, "out": true,
	})
	flagSet := flag.NewFlagSet("fixture-freeze", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var manifestPath string
	var outDir string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&manifestPath, "manifest", "", "path to manifest.json")
	flagSet.StringVar(&outDir, "out", "", "bundle directory to create")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeFixtureOutput("fixture freeze", jsonOutput, fixtureOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printFixtureUsage()
		return exitOK
	}
	if strings.TrimSpace(manifestPath) == "" || strings.TrimSpace(outDir) == "" {
		err := fmt.Errorf("--manifest and --out are required")
		return writeFixtureOutput("fixture freeze", jsonOutput, fixtureOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}

	result, err := bundle.Freeze(manifestPath, outDir)
	if err != nil {
		return writeFixtureOutput("fixture freeze", jsonOutput, fixtureOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeFixtureOutput("fixture freeze", jsonOutput, fixtureOutput{
		OK:            true,
		BundleID:      result.BundleID,
		RunID:         result.RunID,
		Root:          result.Root,
		IncludedPaths: result.IncludedPaths,
	}, exitOK)
}

func runFixtureSeed(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Materialize a validated fixture bundle into a fresh run root. The destination must not already exist; a partial seed is rolled back.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"bundle": true, "dest": true,
	})
	flagSet := flag.NewFlagSet("fixture-seed", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var bundleRoot string
	var destRoot string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&bundleRoot, "bundle", "", "bundle directory to seed from")
	flagSet.StringVar(&destRoot, "dest", "", "run root directory to create")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeFixtureOutput("fixture seed", jsonOutput, fixtureOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printFixtureUsage()
		return exitOK
	}
	if strings.TrimSpace(bundleRoot) == "" || strings.TrimSpace(destRoot) == "" {
		err := fmt.Errorf("--bundle and --dest are required")
		return writeFixtureOutput("fixture seed", jsonOutput, fixtureOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}

	result, err := bundle.Seed(bundleRoot, destRoot)
	if err != nil {
		return writeFixtureOutput("fixture seed", jsonOutput, fixtureOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeFixtureOutput("fixture seed", jsonOutput, fixtureOutput{
		OK:            true,
		BundleID:      result.BundleID,
		RunID:         result.RunID,
		Root:          result.Root,
		IncludedPaths: result.IncludedPaths,
	}, exitOK)
}

func writeFixtureOutput(command string, jsonOutput bool, output fixtureOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		fmt.Printf("%s error: %s\n", command, output.Error)
		return exitCode
	}
	fmt.Printf("%s ok: bundle %s (run %s) at %s, %d files\n",
		command, output.BundleID, output.RunID, output.Root, len(output.IncludedPaths))
	return exitCode
}
