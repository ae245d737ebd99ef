// Command thunkdemo builds objects whose methods are generated trampolines,
// then stress tests construction and teardown.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/thunk/internal/config"
	"github.com/tinyrange/thunk/internal/core"
	"github.com/tinyrange/thunk/internal/native"
	"github.com/tinyrange/thunk/internal/object/pair"
	"github.com/tinyrange/thunk/internal/object/strbuf"
	"github.com/tinyrange/thunk/internal/timeslice"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "thunkdemo: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("thunkdemo", flag.ContinueOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	debug := fs.Bool("debug", false, "Enable debug logging")
	n := fs.Int("n", 1000, "Number of objects to construct and free in the stress loop")
	failAfter := fs.Int("fail-after", 0, "Fail the n-th executable memory allocation")
	timings := fs.Bool("timings", false, "Print a summary of phase timings")
	trace := fs.String("trace", "", "Write raw phase timings to this file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg, err := config.FromEnv(cfg)
	if err != nil {
		return err
	}
	if *failAfter > 0 {
		cfg.FailAfter = *failAfter
	}
	if *debug {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if *trace != "" {
		f, err := os.Create(*trace)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()
		w, err := timeslice.StartRecording(f)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	rt, err := core.NewFromConfig(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := scenario(rt, stdout); err != nil {
		return err
	}
	if err := stress(rt, *n); err != nil {
		return err
	}

	printStats(stdout, rt.Stats())
	if *timings {
		printTimings(stdout, timeslice.Summary())
	}
	return nil
}

// scenario builds two strings and a pair and shows each one answering
// through its own method table. An object whose construction runs out of
// executable memory is reported and skipped, as in stress.
func scenario(rt *core.Runtime, w io.Writer) error {
	a, err := construct(w, "A", func() (*strbuf.String, error) { return strbuf.New(rt, "foo") })
	if err != nil {
		return err
	}
	b, err := construct(w, "B", func() (*strbuf.String, error) { return strbuf.New(rt, "barbaz") })
	if err != nil {
		if a != nil {
			a.Close()
		}
		return err
	}

	if a != nil {
		fmt.Fprintf(w, "A=%q length=%d (entry %#x)\n", a.Text(), a.Len(), a.Length)
	}
	if b != nil {
		fmt.Fprintf(w, "B=%q length=%d (entry %#x)\n", b.Text(), b.Len(), b.Length)
	}
	if a != nil {
		a.Close()
		if b != nil {
			fmt.Fprintf(w, "freed A, B length=%d\n", b.Len())
		}
	}
	if b != nil {
		b.AppendString("!")
		fmt.Fprintf(w, "B=%q after append\n", b.Text())
		b.Close()
	}

	p, err := construct(w, "pair", func() (*pair.Pair, error) { return pair.New(rt, 6, 7, "answer") })
	if err != nil || p == nil {
		return err
	}
	defer p.Close()
	fmt.Fprintf(w, "pair %s: key=%d value=%d sum3(1,2,3)=%d\n",
		p.NameString(), native.Call(p.Key), native.Call(p.Value), native.Call(p.Sum3, 1, 2, 3))
	return nil
}

// construct runs build and turns memory exhaustion into a reported, failed
// construction: it returns nil and no error.
func construct[T any](w io.Writer, name string, build func() (*T, error)) (*T, error) {
	obj, err := build()
	if errors.Is(err, core.ErrMemoryExhausted) {
		fmt.Fprintf(w, "%s: construction failed: %v\n", name, err)
		return nil, nil
	}
	return obj, err
}

// stress constructs and frees n strings. Construction failures caused by
// injected or real memory exhaustion are counted, not fatal.
func stress(rt *core.Runtime, n int) error {
	if n <= 0 {
		return nil
	}

	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("objects"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	failed := 0
	for i := 0; i < n; i++ {
		s, err := strbuf.New(rt, "stress")
		switch {
		case err == nil:
			s.AppendString("!")
			s.Close()
		case errors.Is(err, core.ErrMemoryExhausted):
			failed++
		default:
			return err
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}
	if failed > 0 {
		slog.Warn("constructions failed", "failed", failed, "total", n)
	}
	return nil
}

func printStats(w io.Writer, st core.Stats) {
	printTable(w, []string{"counter", "value"}, [][]string{
		{"trampolines created", fmt.Sprint(st.Created)},
		{"trampolines freed", fmt.Sprint(st.Freed)},
		{"creations failed", fmt.Sprint(st.Failed)},
		{"trampolines live", fmt.Sprint(st.Live)},
		{"blocks allocated", fmt.Sprint(st.Provider.Allocations)},
		{"blocks live", fmt.Sprint(st.Provider.LiveBlocks)},
		{"bytes reserved", fmt.Sprint(st.Provider.ReservedBytes)},
		{"arenas", fmt.Sprint(st.Provider.Arenas)},
	})
}

func printTimings(w io.Writer, summary []timeslice.KindSummary) {
	rows := make([][]string, 0, len(summary))
	for _, k := range summary {
		rows = append(rows, []string{k.Name, fmt.Sprint(k.Count), k.Total.String(), k.Mean().String(), k.Max.String()})
	}
	printTable(w, []string{"phase", "count", "total", "mean", "max"}, rows)
}

func printTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for _, row := range append([][]string{header}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}
	line := func(row []string) {
		var sb strings.Builder
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
			sb.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)))
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}
	line(header)
	for _, row := range rows {
		line(row)
	}
}
