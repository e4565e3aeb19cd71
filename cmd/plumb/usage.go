package main

import "fmt"

func printUsage() {
	fmt.Print(`plumb - deterministic deep-research run coordination

Usage:
  plumb run init --root <dir> --run-id <id> [--stage <stage>] [--json]
  plumb run patch --manifest <path> --expected-revision <n> [--status <s>] [--stage <s>] [--failure-kind <k>] [--json]
  plumb run show --manifest <path> [--json]
  plumb watchdog check --manifest <path> [--stage <s>] [--timeouts <yaml>] [--json]
  plumb gate eval --manifest <path> [--json]
  plumb fixture freeze --manifest <path> --out <dir> [--json]
  plumb fixture seed --bundle <dir> --dest <dir> [--json]
  plumb replay --bundle <dir> [--reason <text>] [--json]
  plumb version

Every command accepts --explain for a one-paragraph description.
`)
}

func printRunUsage() {
	fmt.Print(`plumb run - run manifest lifecycle

Usage:
  plumb run init --root <dir> --run-id <id> [--stage <stage>] [--json]
      Create a run root with a revision-1 manifest and an all-not_run gates document.

  plumb run patch --manifest <path> --expected-revision <n>
                  [--status <status>] [--stage <stage>] [--now <rfc3339>]
                  [--failure-kind <kind> --failure-message <text> [--failure-retryable]]
                  [--reason <text>] [--json]
      Apply one revision-checked patch. A stale --expected-revision is rejected
      with a conflict and no side effects.

  plumb run show --manifest <path> [--json]
      Print the manifest after schema validation.
`)
}

func printWatchdogUsage() {
	fmt.Print(`plumb watchdog - stage timeout enforcement

Usage:
  plumb watchdog check --manifest <path> [--stage <stage>] [--now <rfc3339>]
                       [--timeouts <yaml>] [--json]
      Compare elapsed stage time against the timeout table. Within the
      allowance the check is read-only; past it, a checkpoint markdown is
      written and the run is failed terminally with a timeout failure entry.
`)
}

func printGateUsage() {
	fmt.Print(`plumb gate - deterministic quality gates

Usage:
  plumb gate eval --manifest <path> [--json]
      Evaluate Gate E over the synthesis document and validated citations:
      uncited numeric claims, required section coverage, and citation
      utilization. Writes four canonical reports plus the gate record.
      Exit 0 on pass, 3 on a fail verdict.
`)
}

func printFixtureUsage() {
	fmt.Print(`plumb fixture - frozen replay bundles

Usage:
  plumb fixture freeze --manifest <path> --out <dir> [--json]
      Snapshot a run into an immutable bundle directory with a bundle.json
      descriptor. The output directory must not already exist.

  plumb fixture seed --bundle <dir> --dest <dir> [--json]
      Materialize a validated bundle into a fresh run root.
`)
}

func printReplayUsage() {
	fmt.Print(`plumb replay - bit-reproducibility verification

Usage:
  plumb replay --bundle <dir> [--reason <text>] [--json]
      Recompute the Gate E reports from the bundled inputs into a scratch
      directory, then compare content hashes and verdicts against the
      bundled artifacts. Exit 0 on pass, 3 on a mismatch.
`)
}
