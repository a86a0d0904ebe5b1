package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/atomworks/nnprep/internal/config"
	"github.com/atomworks/nnprep/internal/dataset"
	logpkg "github.com/atomworks/nnprep/internal/logger"
	"github.com/atomworks/nnprep/internal/metrics"
	"github.com/atomworks/nnprep/pkg/pairs"
	"github.com/atomworks/nnprep/pkg/record"
	"github.com/atomworks/nnprep/pkg/snapshot"
	"github.com/atomworks/nnprep/pkg/tensor"
)

// systemSpec is the YAML system description consumed by pack: everything an
// input record needs except the positions, which come from the tensor file.
type systemSpec struct {
	AtomicNumbers    []int       `yaml:"atomic_numbers"`
	SubsystemIndices []int       `yaml:"atomic_subsystem_indices"`
	TotalCharge      []int       `yaml:"total_charge"`
	PartialCharge    []float64   `yaml:"partial_charge"`
	BoxVectors       [][]float64 `yaml:"box_vectors"`
	IsPeriodic       bool        `yaml:"is_periodic"`
}

func (s *systemSpec) options() ([]record.Option, error) {
	opts := make([]record.Option, 0, 3)
	if s.PartialCharge != nil {
		opts = append(opts, record.WithPartialCharge(s.PartialCharge))
	}
	if s.BoxVectors != nil {
		box, err := toBox(s.BoxVectors)
		if err != nil {
			return nil, err
		}
		opts = append(opts, record.WithBoxVectors(box))
	}
	if s.IsPeriodic {
		opts = append(opts, record.Periodic())
	}
	return opts, nil
}

func toBox(rows [][]float64) ([3][3]float64, error) {
	var box [3][3]float64
	if len(rows) != 3 {
		return box, record.NewShapeMismatch("box_vectors",
			"expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 3 {
			return box, record.NewShapeMismatch("box_vectors",
				"row %d has %d entries, expected 3", i, len(row))
		}
		copy(box[i][:], row)
	}
	return box, nil
}

func runPack(logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	positionsPath := fs.String("positions", "", "positions parquet file (required)")
	systemPath := fs.String("system", "", "system description YAML (required)")
	outPath := fs.String("o", "", "output snapshot file (required)")
	_ = fs.Parse(args)

	if *positionsPath == "" || *systemPath == "" || *outPath == "" {
		return fmt.Errorf("pack requires -positions, -system, and -o")
	}

	positions, err := tensor.ReadPositions(*positionsPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Clean(*systemPath))
	if err != nil {
		return fmt.Errorf("read system file: %w", err)
	}
	var spec systemSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parse system file: %w", err)
	}
	opts, err := spec.options()
	if err != nil {
		return err
	}

	r, err := record.New(spec.AtomicNumbers, positions, spec.SubsystemIndices, spec.TotalCharge, opts...)
	if err != nil {
		return err
	}
	if err := snapshot.WriteFile(*outPath, snapshot.FromRecord(r)); err != nil {
		return err
	}

	logger.Info("snapshot packed",
		zap.String("output", *outPath),
		zap.Int("atoms", r.NumAtoms()),
		zap.Int("systems", r.NumSystems()),
	)
	return nil
}

func runConvert(logger *zap.Logger, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: nnprep convert <in> <out>")
	}
	in, out := args[0], args[1]

	s, err := snapshot.ReadFile(in)
	if err != nil {
		return err
	}
	r, err := snapshot.ToRecord(s)
	if err != nil {
		return err
	}
	if err := snapshot.WriteFile(out, snapshot.FromRecord(r)); err != nil {
		return err
	}

	logger.Info("snapshot converted",
		zap.String("input", in),
		zap.String("output", out),
		zap.Int("from_version", s.Version),
		zap.Int("to_version", snapshot.VersionCurrent),
	)
	return nil
}

func runValidate(logger *zap.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nnprep validate <file>")
	}

	s, err := snapshot.ReadFile(args[0])
	if err != nil {
		return err
	}
	r, err := snapshot.ToRecord(s)
	if err != nil {
		return err
	}

	logger.Info("snapshot is valid",
		zap.String("file", args[0]),
		zap.Int("version", s.Version),
		zap.Int("atoms", r.NumAtoms()),
		zap.Int("systems", r.NumSystems()),
	)
	return nil
}

func runInspect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nnprep inspect <file>")
	}

	s, err := snapshot.ReadFile(args[0])
	if err != nil {
		return err
	}
	r, err := snapshot.ToRecord(s)
	if err != nil {
		return err
	}

	fmt.Printf("file:            %s (schema version %d)\n", args[0], s.Version)
	fmt.Printf("atoms:           %d\n", r.NumAtoms())
	fmt.Printf("subsystems:      %d\n", r.NumSystems())
	fmt.Printf("total charge:    %v\n", r.TotalCharge())
	if p := r.PairList(); p != nil {
		fmt.Printf("pair list:       %d pairs\n", p.Len())
	} else {
		fmt.Printf("pair list:       absent\n")
	}
	if q := r.PartialCharge(); q != nil {
		var w dataset.Welford
		for _, x := range q {
			w.Update(x)
		}
		fmt.Printf("partial charge:  mean %.4f, stddev %.4f\n", w.Mean(), w.StdDev())
	} else {
		fmt.Printf("partial charge:  absent\n")
	}
	fmt.Printf("periodic:        %v\n", r.Periodic())
	fmt.Printf("box vectors:     %v\n", r.BoxVectors())

	counts := dataset.ElementCounts([]record.Record{r})
	elements := make([]int, 0, len(counts))
	for z := range counts {
		elements = append(elements, z)
	}
	sort.Ints(elements)
	fmt.Printf("elements:       ")
	for _, z := range elements {
		fmt.Printf(" Z=%d×%d", z, counts[z])
	}
	fmt.Println()

	axes := dataset.PositionSpread(r)
	for a, name := range [3]string{"x", "y", "z"} {
		fmt.Printf("%s spread:        mean %.4f, stddev %.4f\n",
			name, axes[a].Mean(), axes[a].StdDev())
	}
	return nil
}

func runPairs(logger *zap.Logger, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("pairs", flag.ExitOnError)
	cutoff := fs.Float64("cutoff", cfg.Pairs.Cutoff, "distance cutoff in position units")
	unique := fs.Bool("unique", cfg.Pairs.Unique, "keep upper-triangle pairs only")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: nnprep pairs [flags] <in> <out>")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	s, err := snapshot.ReadFile(in)
	if err != nil {
		return err
	}
	r, err := snapshot.ToRecord(s)
	if err != nil {
		return err
	}

	p, err := pairs.WithinCutoff(r.Positions(), r.SubsystemIndices(), *cutoff, *unique)
	if err != nil {
		return err
	}

	opts := []record.Option{record.WithPairList(p.I, p.J)}
	if r.PartialCharge() != nil {
		opts = append(opts, record.WithPartialCharge(r.PartialCharge()))
	}
	opts = append(opts, record.WithBoxVectors(r.BoxVectors()))
	if r.Periodic() {
		opts = append(opts, record.Periodic())
	}
	updated, err := record.New(
		r.AtomicNumbers(), r.Positions(), r.SubsystemIndices(), r.TotalCharge(), opts...)
	if err != nil {
		return err
	}
	if err := snapshot.WriteFile(out, snapshot.FromRecord(updated)); err != nil {
		return err
	}

	logger.Info("pair list computed",
		zap.String("output", out),
		zap.Float64("cutoff", *cutoff),
		zap.Int("pairs", p.Len()),
	)
	return nil
}

func runCollate(logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("collate", flag.ExitOnError)
	outPath := fs.String("o", "", "output snapshot file (required)")
	_ = fs.Parse(args)

	if *outPath == "" || fs.NArg() == 0 {
		return fmt.Errorf("usage: nnprep collate -o <out> <in...>")
	}

	records := make([]record.Record, 0, fs.NArg())
	for _, in := range fs.Args() {
		s, err := snapshot.ReadFile(in)
		if err != nil {
			return err
		}
		r, err := snapshot.ToRecord(s)
		if err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
		records = append(records, r)
	}

	batch, err := dataset.Collate(records)
	if err != nil {
		return err
	}
	if err := snapshot.WriteFile(*outPath, snapshot.FromRecord(batch)); err != nil {
		return err
	}

	logger.Info("snapshots collated",
		zap.Int("inputs", len(records)),
		zap.Int("atoms", batch.NumAtoms()),
		zap.Int("systems", batch.NumSystems()),
		zap.String("output", *outPath),
	)
	return nil
}

func runSplit(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	seed := fs.Int64("seed", *cfg.Split.Seed, "shuffle seed")
	ordered := fs.Bool("ordered", false, "partition in file order instead of shuffling")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: nnprep split [flags] <dir>")
	}

	files, err := filepath.Glob(filepath.Join(fs.Arg(0), "*.nnps"))
	if err != nil {
		return fmt.Errorf("glob snapshots: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no snapshot files in %s", fs.Arg(0))
	}
	sort.Strings(files)

	var fractions [3]float64
	copy(fractions[:], cfg.Split.Fractions)

	var strategy dataset.Strategy
	if *ordered {
		strategy = dataset.FirstComeFirstServe{Fractions: fractions}
	} else {
		strategy = dataset.RandomSplit{Seed: *seed, Fractions: fractions}
	}
	split, err := strategy.Split(len(files))
	if err != nil {
		return err
	}

	printPartition := func(name string, indices []int) {
		for _, idx := range indices {
			fmt.Printf("%s\t%s\n", name, files[idx])
		}
	}
	printPartition("train", split.Train)
	printPartition("validation", split.Validation)
	printPartition("test", split.Test)
	return nil
}

func runFetch(logger *zap.Logger, cfg config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nnprep fetch <dataset>")
	}
	name := args[0]
	ds, ok := cfg.Datasets[name]
	if !ok {
		return fmt.Errorf("dataset %q is not configured", name)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPipeline(reg)
	if cfg.Metrics.Port > 0 {
		srv := metrics.Serve(cfg.Metrics.Port, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logpkg.ContextWithLogger(ctx, logger)

	fetcher := dataset.NewFetcher(cfg.Cache.Dir, m)
	path, err := fetcher.Fetch(ctx, dataset.Source{
		Name:     name,
		URL:      ds.URL,
		SHA256:   ds.SHA256,
		Filename: ds.Filename,
	})
	if err != nil {
		return err
	}

	logger.Info("fetch complete", zap.String("path", path))
	return nil
}
