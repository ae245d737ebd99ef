// Command timeslice prints a phase timing stream written by thunkdemo -trace.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tinyrange/thunk/internal/timeslice"
)

type timesliceRecord struct {
	Kind  string
	Count int
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

func (r *timesliceRecord) String() string {
	return fmt.Sprintf("% 24s count=% 8d sum=% 16s min=% 12s max=% 12s avg=% 12s",
		r.Kind, r.Count, r.Sum, r.Min, r.Max, r.Sum/time.Duration(r.Count))
}

func (r *timesliceRecord) Add(duration time.Duration) {
	r.Count++
	r.Sum += duration
	if r.Min == 0 || duration < r.Min {
		r.Min = duration
	}
	if duration > r.Max {
		r.Max = duration
	}
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	filename := fs.String("filename", "", "Timeslice file to read")
	sums := fs.Bool("sums", false, "Print per-phase totals instead of every record")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if *filename == "" {
		fs.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open timeslice file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if !*sums {
		if err := timeslice.ReadAllRecords(f, func(kind string, duration time.Duration) error {
			fmt.Printf("%s %s\n", kind, duration)
			return nil
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to read timeslice file: %v\n", err)
			os.Exit(1)
		}
		return
	}

	records := map[string]*timesliceRecord{}
	var order []string
	if err := timeslice.ReadAllRecords(f, func(kind string, duration time.Duration) error {
		rec, ok := records[kind]
		if !ok {
			order = append(order, kind)
			rec = &timesliceRecord{Kind: kind}
			records[kind] = rec
		}
		rec.Add(duration)
		return nil
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read timeslice file: %v\n", err)
		os.Exit(1)
	}
	for _, kind := range order {
		fmt.Println(records[kind])
	}
}
