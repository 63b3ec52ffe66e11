package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// Outcome is the shape of a run: which of the two sides failed.
type Outcome int

const (
	ResponseCorrect Outcome = iota
	ReadResponseError
	WriteNumberError
	BothErr
)

// RunResult identifies a statistics bucket. Errors are kept only as their
// ErrorKind so equal kinds compare equal.
type RunResult struct {
	Outcome   Outcome
	ReadKind  ErrorKind
	WriteKind ErrorKind
}

func (r RunResult) String() string {
	switch r.Outcome {
	case ResponseCorrect:
		return "ResponseCorrect"
	case ReadResponseError:
		return fmt.Sprintf("ReadResponseError(%s)", r.ReadKind)
	case WriteNumberError:
		return fmt.Sprintf("WriteNumberError(%s)", r.WriteKind)
	case BothErr:
		return fmt.Sprintf("BothErr{read: %s, write: %s}", r.ReadKind, r.WriteKind)
	}
	return fmt.Sprintf("Outcome(%d)", int(r.Outcome))
}

// classify folds the reader's and writer's errors into a RunResult.
func classify(readErr, writeErr error) RunResult {
	switch {
	case readErr == nil && writeErr == nil:
		return RunResult{Outcome: ResponseCorrect}
	case writeErr == nil:
		return RunResult{Outcome: ReadResponseError, ReadKind: errorKind(readErr)}
	case readErr == nil:
		return RunResult{Outcome: WriteNumberError, WriteKind: errorKind(writeErr)}
	default:
		return RunResult{
			Outcome:   BothErr,
			ReadKind:  errorKind(readErr),
			WriteKind: errorKind(writeErr),
		}
	}
}

// Stats counts runs per result bucket.
type Stats map[RunResult]int

func (s Stats) Add(r RunResult) { s[r]++ }

func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// StatsEntry is one row of the frequency table.
type StatsEntry struct {
	Result RunResult
	Count  int
}

// Entries returns the buckets ordered by descending count, then by name.
func (s Stats) Entries() []StatsEntry {
	entries := make([]StatsEntry, 0, len(s))
	for r, n := range s {
		entries = append(entries, StatsEntry{Result: r, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Result.String() < entries[j].Result.String()
	})
	return entries
}

// WriteTable prints the frequency table.
func (s Stats) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "multi run stats:")
	for _, e := range s.Entries() {
		fmt.Fprintf(tw, "  %s\t%d\n", e.Result, e.Count)
	}
	fmt.Fprintf(tw, "  total\t%d\n", s.Total())
	return tw.Flush()
}
