// Package cli implements the ibu command-line interface.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/fileio"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/memdiag"
	"github.com/eunmann/ibu/pkg/parallel"
	"github.com/eunmann/ibu/pkg/s3fetch"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	a := &app{stdin: os.Stdin}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	err := root.ExecuteContext(context.Background())
	a.stopDiagnostics()
	return err
}

// app holds global flags and the resources built from them.
type app struct {
	stdin io.Reader

	debug     bool
	human     bool
	memDebug  bool
	threads   int
	batchSize int
	codec     string
	level     int
	tmpDir    string
	s3        s3fetch.Config

	// s3Client overrides the client built from the s3 flags.
	s3Client *s3fetch.Client

	opener *fileio.Opener
	mem    *memdiag.Tracker
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ibu",
		Short: "Inspect and transform ibu barcode/UMI/index files",
		Long: `ibu reads and writes the fixed-width ibu container: a 32-byte header
followed by 24-byte (barcode, umi, index) records.

Inputs and outputs may be local paths, "-" for stdin/stdout, or s3:// URIs.
Compressed inputs (gzip, zstd, snappy, lz4) are detected automatically;
outputs are compressed according to their extension.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.stopDiagnostics()
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.human, "human", false, "human-readable console logs")
	pf.BoolVar(&a.memDebug, "mem-debug", false, "log periodic memory statistics at debug level")
	pf.IntVarP(&a.threads, "threads", "t", 0, "worker count for parallel scans (0 = all CPUs)")
	pf.IntVar(&a.batchSize, "batch-size", parallel.DefaultBatchSize, "records per parallel batch")
	pf.StringVar(&a.codec, "compress", "", "force output compression: none, gzip, zstd, snappy, lz4")
	pf.IntVar(&a.level, "level", int(compress.LevelDefault), "compression level: 1 fastest, 3 default, 6 better")
	pf.StringVar(&a.tmpDir, "tmp", "", "directory for downloaded or decoded inputs")
	pf.StringVar(&a.s3.Region, "s3-region", "", "AWS region override")
	pf.StringVar(&a.s3.Endpoint, "s3-endpoint", "", "S3 endpoint override (MinIO, LocalStack)")
	pf.BoolVar(&a.s3.UsePathStyle, "s3-path-style", false, "use path-style S3 addressing")

	root.AddCommand(
		newGenerateCmd(a),
		newViewCmd(a),
		newStatsCmd(a),
		newSortCmd(a),
		newCatCmd(a),
		newCountCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	logging.InitWriter(cmd.ErrOrStderr(), a.debug, a.human)
	// run_id ties together every line one invocation logs.
	runID := ksuid.New().String()
	ctx := logctx.WithLogger(cmd.Context(), logging.WithPhase(cmd.Name()).With().Str("run_id", runID).Logger())
	cmd.SetContext(ctx)

	o := fileio.New()
	o.Stdin = a.stdin
	o.Stdout = cmd.OutOrStdout()
	o.S3Config = a.s3
	o.Level = compress.Level(a.level)
	if cmd.Flags().Changed("compress") {
		codec, err := compress.ParseFormat(a.codec)
		if err != nil {
			return err
		}
		o.Codec = &codec
	}
	if a.s3Client != nil {
		o.SetS3Client(a.s3Client)
	}
	a.opener = o

	mcfg := memdiag.ConfigFromEnv()
	mcfg.Enabled = mcfg.Enabled || a.memDebug
	a.mem = memdiag.NewTracker(mcfg, logging.WithPhase("memory").With().Str("run_id", runID).Logger())
	a.mem.Start()
	return nil
}

func (a *app) stopDiagnostics() {
	if a.mem != nil {
		a.mem.Stop()
	}
}

func (a *app) parallelConfig() parallel.Config {
	return parallel.Config{NumThreads: a.threads, BatchSize: a.batchSize}
}

// inputArg returns the single optional input argument, defaulting to stdin.
func inputArg(args []string) string {
	if len(args) == 0 {
		return fileio.Stdio
	}
	return args[0]
}

func closeQuietly(ctx context.Context, c io.Closer, what string) {
	if err := c.Close(); err != nil {
		log := logctx.FromContext(ctx)
		log.Debug().Err(err).Str("resource", what).Msg("close failed")
	}
}
