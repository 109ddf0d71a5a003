package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/artpar/rollout/internal/core/deployment"
	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/core/phases"
	"github.com/artpar/rollout/internal/core/planfile"
)

type cliEnv struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

// =============================================================================
// check
// =============================================================================

func (e *cliEnv) checkCmd(args []string) int {
	file, root, code := e.load("check", args)
	if file == nil {
		return code
	}

	target := file.Resolution()
	ok, reason := phases.CheckPhases(file.Plan.Phases, target.DeviceCount, target.HasFilter())

	fmt.Fprintf(e.stdout, "artifact: %s\n", file.Plan.ArtifactName)
	fmt.Fprintf(e.stdout, "target:   %s\n", describeTarget(target))
	if file.Plan.IsImmediate() {
		fmt.Fprintf(e.stdout, "start:    immediately (previewed at %s)\n", domain.FormatTimestamp(root))
	} else {
		fmt.Fprintf(e.stdout, "start:    %s\n", domain.FormatTimestamp(root))
	}
	fmt.Fprintln(e.stdout)

	e.printSchedule(file.Plan.Phases, root)

	if len(file.Plan.Phases) > 1 {
		fmt.Fprintf(e.stdout, "\npattern: %s\n", phases.Describe(phases.Standardize(file.Plan.Phases)))
	}

	if !ok {
		fmt.Fprintf(e.stdout, "\ninvalid: %s\n", reason)
		return ExitInvalidPlan
	}
	fmt.Fprintln(e.stdout, "\nvalid")
	return ExitOK
}

func (e *cliEnv) printSchedule(plan []domain.Phase, root time.Time) {
	stamped := phases.StampStartTimes(plan, root)
	inferred := phases.InferredLastBatch(plan)

	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tBATCH\tSTART\tTHEN WAIT")
	for i, p := range stamped {
		batch := "?"
		switch {
		case p.BatchSize != nil:
			batch = fmt.Sprintf("%d%%", *p.BatchSize)
		case i == len(stamped)-1:
			batch = fmt.Sprintf("%d%% (remaining)", inferred)
		}

		wait := "-"
		if d := p.DelayValue(); d > 0 && i < len(stamped)-1 {
			unit := p.DelayUnit
			if unit == domain.DelayUnitNone {
				unit = domain.DefaultDelayUnit
			}
			wait = fmt.Sprintf("%d %s", d, unit)
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, batch, domain.FormatTimestamp(*p.StartTS), wait)
	}
	w.Flush()
}

// =============================================================================
// request
// =============================================================================

func (e *cliEnv) requestCmd(args []string) int {
	file, root, code := e.load("request", args)
	if file == nil {
		return code
	}

	target := file.Resolution()
	if ok, reason := phases.CheckPhases(file.Plan.Phases, target.DeviceCount, target.HasFilter()); !ok {
		fmt.Fprintf(e.stderr, "invalid plan: %s\n", reason)
		return ExitInvalidPlan
	}

	// Retries are shown as written; whether the tenant may retry is only
	// known to the server.
	req := deployment.BuildCreateRequest(file.Plan, target, root, true)

	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(req); err != nil {
		fmt.Fprintf(e.stderr, "failed to encode request: %v\n", err)
		return ExitInvalidPlan
	}
	return ExitOK
}

// =============================================================================
// Helpers
// =============================================================================

// load parses flags and the plan file. It returns a nil file and the exit
// code when the command cannot continue.
func (e *cliEnv) load(name string, args []string) (*planfile.PlanFile, time.Time, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	nowFlag := fs.String("now", "", "RFC 3339 instant used as the start of immediate plans")
	if err := fs.Parse(args); err != nil {
		return nil, time.Time{}, ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(e.stderr, "usage: rolloutctl %s [-now TS] <plan.yaml>\n", name)
		return nil, time.Time{}, ExitUsage
	}

	now := e.now().UTC()
	if *nowFlag != "" {
		t, err := time.Parse(time.RFC3339, *nowFlag)
		if err != nil {
			fmt.Fprintf(e.stderr, "invalid -now: %v\n", err)
			return nil, time.Time{}, ExitUsage
		}
		now = t.UTC()
	}

	content, err := e.readPlan(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(e.stderr, "failed to read plan: %v\n", err)
		return nil, time.Time{}, ExitUsage
	}

	file, err := planfile.Parse(content)
	if err != nil {
		var pErr *planfile.ParseError
		if errors.As(err, &pErr) && pErr.Field != "" {
			fmt.Fprintf(e.stderr, "invalid plan file: %s: %s\n", pErr.Field, pErr.Message)
		} else {
			fmt.Fprintf(e.stderr, "invalid plan file: %v\n", err)
		}
		return nil, time.Time{}, ExitInvalidPlan
	}

	root := now
	if file.Plan.StartTime != nil {
		root = file.Plan.StartTime.UTC()
	}
	return file, root, ExitOK
}

func (e *cliEnv) readPlan(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(e.stdin)
	}
	return os.ReadFile(path)
}

func describeTarget(r domain.Resolution) string {
	count := "unknown count"
	if r.CountKnown {
		count = fmt.Sprintf("%d devices", r.DeviceCount)
	}
	switch {
	case len(r.DeviceIDs) > 0:
		return fmt.Sprintf("devices %v (%s)", r.DeviceIDs, count)
	case r.GroupName != "":
		return fmt.Sprintf("group %q (%s)", r.GroupName, count)
	case r.FilterID != "":
		return fmt.Sprintf("filter %q (%s)", r.FilterID, count)
	default:
		return fmt.Sprintf("%s (%s)", domain.AllDevicesName, count)
	}
}
