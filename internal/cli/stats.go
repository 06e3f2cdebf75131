package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/bcindex"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/mmapview"
	"github.com/eunmann/ibu/pkg/parallel"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// rangeStats summarizes one worker's contiguous range.
type rangeStats struct {
	records  int64
	first    format.Record
	last     format.Record
	sorted   bool
	minIndex uint64
	maxIndex uint64
}

func (s *rangeStats) add(r format.Record) {
	if s.records == 0 {
		s.first, s.minIndex, s.maxIndex = r, r.Index, r.Index
	} else {
		if s.sorted && format.Compare(s.last, r) > 0 {
			s.sorted = false
		}
		s.minIndex = min(s.minIndex, r.Index)
		s.maxIndex = max(s.maxIndex, r.Index)
	}
	s.last = r
	s.records++
}

// statsProcessor gives every worker its own rangeStats, registered under
// the worker index so ranges can be stitched back together in order.
type statsProcessor struct {
	parallel.WorkerID
	mu     *sync.Mutex
	ranges map[int]*rangeStats
	local  *rangeStats
}

func newStatsProcessor() *statsProcessor {
	return &statsProcessor{mu: &sync.Mutex{}, ranges: make(map[int]*rangeStats)}
}

func (p *statsProcessor) ProcessRecord(r format.Record) error {
	p.local.add(r)
	return nil
}

func (p *statsProcessor) Clone() parallel.Processor {
	return &statsProcessor{mu: p.mu, ranges: p.ranges, local: &rangeStats{sorted: true}}
}

func (p *statsProcessor) SetTID(tid int) {
	p.WorkerID.SetTID(tid)
	p.mu.Lock()
	p.ranges[tid] = p.local
	p.mu.Unlock()
}

// summary merges the per-worker ranges in worker order.
func (p *statsProcessor) summary() fileStats {
	out := fileStats{sorted: true}
	var prev *rangeStats
	for _, tid := range slices.Sorted(maps.Keys(p.ranges)) {
		s := p.ranges[tid]
		if s.records == 0 {
			continue
		}
		if !s.sorted || (prev != nil && format.Compare(prev.last, s.first) > 0) {
			out.sorted = false
		}
		if prev == nil {
			out.minIndex, out.maxIndex = s.minIndex, s.maxIndex
		} else {
			out.minIndex = min(out.minIndex, s.minIndex)
			out.maxIndex = max(out.maxIndex, s.maxIndex)
		}
		out.records += s.records
		prev = s
	}
	return out
}

type fileStats struct {
	header   format.Header
	records  int64
	barcodes int
	sorted   bool
	minIndex uint64
	maxIndex uint64
}

func newStatsCmd(a *app) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "stats <input>",
		Short: "Summarize a file with a parallel scan",
		Long: `Stats maps the input and scans it in parallel, reporting the record
count, distinct barcodes, index range, and whether the records are actually
sorted (independent of the header flag).

Remote and compressed inputs are first materialized into --tmp.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := collectStats(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			report := newStatsReport(args[0], st)
			if asYAML {
				return report.writeYAML(cmd.OutOrStdout())
			}
			return report.writeText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the summary as YAML")
	return cmd
}

func collectStats(ctx context.Context, a *app, input string) (fileStats, error) {
	ctx = logctx.WithStr(ctx, "input", input)
	log := logctx.FromContext(ctx)

	local, err := a.opener.Localize(ctx, input, a.tmpDir)
	if err != nil {
		return fileStats{}, err
	}
	defer closeQuietly(ctx, local, local.Path)

	v, err := mmapview.Open(local.Path)
	if err != nil {
		return fileStats{}, err
	}
	defer closeQuietly(ctx, v, local.Path)

	start := time.Now()
	cfg := a.parallelConfig()
	proc := newStatsProcessor()
	tracker := logging.NewProgressTracker("stats", int64(v.Len()), log)
	if err := parallel.Run(ctx, v, parallel.WithProgress(proc, tracker), cfg); err != nil {
		return fileStats{}, fmt.Errorf("scan %s: %w", input, err)
	}

	idx, err := bcindex.BuildFromView(ctx, v, cfg)
	if err != nil {
		return fileStats{}, err
	}

	st := proc.summary()
	st.header = v.Header()
	st.barcodes = idx.Len()
	logging.PhaseComplete(log, "stats", time.Since(start), st.records, "stats complete")
	return st, nil
}

// statsReport is the printed form of fileStats.
type statsReport struct {
	Path             string  `yaml:"path"`
	Version          uint32  `yaml:"version"`
	BarcodeLen       uint32  `yaml:"bc_len"`
	UMILen           uint32  `yaml:"umi_len"`
	SortedFlag       bool    `yaml:"sorted_flag"`
	Records          int64   `yaml:"records"`
	Bytes            int64   `yaml:"bytes"`
	Size             string  `yaml:"size"`
	DistinctBarcodes int     `yaml:"distinct_barcodes"`
	IsSorted         bool    `yaml:"is_sorted"`
	MinIndex         *uint64 `yaml:"min_index,omitempty"`
	MaxIndex         *uint64 `yaml:"max_index,omitempty"`
}

func newStatsReport(input string, st fileStats) statsReport {
	n := format.HeaderSize + st.records*format.RecordSize
	r := statsReport{
		Path:             input,
		Version:          st.header.Version,
		BarcodeLen:       st.header.BarcodeLen,
		UMILen:           st.header.UMILen,
		SortedFlag:       st.header.Sorted(),
		Records:          st.records,
		Bytes:            n,
		Size:             bytefmt.ByteSize(uint64(n)),
		DistinctBarcodes: st.barcodes,
		IsSorted:         st.sorted,
	}
	if st.records > 0 {
		r.MinIndex, r.MaxIndex = &st.minIndex, &st.maxIndex
	}
	return r
}

func (r statsReport) writeText(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "path\t%s\n", r.Path)
	fmt.Fprintf(tw, "version\t%d\n", r.Version)
	fmt.Fprintf(tw, "bc_len\t%d\n", r.BarcodeLen)
	fmt.Fprintf(tw, "umi_len\t%d\n", r.UMILen)
	fmt.Fprintf(tw, "sorted_flag\t%t\n", r.SortedFlag)
	fmt.Fprintf(tw, "records\t%d\n", r.Records)
	fmt.Fprintf(tw, "bytes\t%d\n", r.Bytes)
	fmt.Fprintf(tw, "size\t%s\n", r.Size)
	fmt.Fprintf(tw, "distinct_barcodes\t%d\n", r.DistinctBarcodes)
	fmt.Fprintf(tw, "is_sorted\t%t\n", r.IsSorted)
	if r.MinIndex != nil {
		fmt.Fprintf(tw, "min_index\t%d\n", *r.MinIndex)
		fmt.Fprintf(tw, "max_index\t%d\n", *r.MaxIndex)
	}
	return tw.Flush()
}

func (r statsReport) writeYAML(out io.Writer) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	_, err = out.Write(data)
	return err
}
