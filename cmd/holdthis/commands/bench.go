package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rzpsarthak13/holdthis/pkg/holdthis"
)

const benchTopic = "bench"

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure write throughput and latency",
	Long: `Measure write throughput and latency.

Scenarios:
  memory   single writes to an in-memory database
  disk     single writes to a file without write-ahead logging
  diskWAL  single writes to a file with write-ahead logging
  bulk     one transactional bulk insert in turbo mode`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		b := &bench{
			iterations: viper.GetInt("iterations"),
			warmup:     viper.GetInt("warmup"),
			dir:        viper.GetString("dir"),
			out:        cmd.OutOrStdout(),
		}
		if b.iterations <= 0 {
			return fmt.Errorf("iterations must be positive, got %d", b.iterations)
		}
		for _, scenario := range strings.Split(viper.GetString("scenarios"), ",") {
			if err := b.run(cmd.Context(), strings.TrimSpace(scenario)); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("iterations", 10000, wrapString("Number of measured writes per scenario"))
	benchCmd.Flags().Int("warmup", 1000, wrapString("Number of unmeasured writes before each scenario"))
	benchCmd.Flags().String("scenarios", "memory,disk,diskWAL,bulk", wrapString("Comma separated scenarios to run"))
	benchCmd.Flags().String("dir", os.TempDir(), wrapString("Directory for the file-backed scenarios"))
}

type bench struct {
	iterations int
	warmup     int
	dir        string
	out        io.Writer
}

func (b *bench) run(ctx context.Context, scenario string) error {
	config := holdthis.DefaultConfig()
	if viper.GetBool("verbose") {
		config.Logger = newLogger(true)
	}

	var files []string
	switch scenario {
	case "memory":
		config.Engine.Location = ":memory:"
	case "disk":
		config.Engine.Location = filepath.Join(b.dir, "bench.db")
		config.Engine.EnableWAL = false
		files = dbFiles(config.Engine.Location)
	case "diskWAL":
		config.Engine.Location = filepath.Join(b.dir, "bench-wal.db")
		config.Engine.EnableWAL = true
		files = dbFiles(config.Engine.Location)
	case "bulk":
		config.Engine.Location = ":memory:"
		config.Turbo = true
	default:
		return fmt.Errorf("unknown scenario %q", scenario)
	}
	removeFiles(files)
	defer removeFiles(files)

	s, err := holdthis.OpenContext(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to open store for %s: %w", scenario, err)
	}
	defer s.Close()

	if scenario == "bulk" {
		return b.bulk(ctx, s)
	}
	return b.single(ctx, scenario, s)
}

func (b *bench) single(ctx context.Context, scenario string, s *holdthis.Store) error {
	for i := 0; i < b.warmup; i++ {
		if _, err := s.Set(ctx, benchTopic, fmt.Sprintf("warmup:%d", i), i); err != nil {
			return err
		}
	}

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < b.iterations; i++ {
		opStart := time.Now()
		if _, err := s.Set(ctx, benchTopic, fmt.Sprintf("key:%d", i), i); err != nil {
			return err
		}
		if err := sketch.Add(float64(time.Since(opStart).Microseconds())); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	fmt.Fprintf(b.out, "%-8s %10.0f ops/sec  p50=%s p90=%s p99=%s\n",
		scenario,
		float64(b.iterations)/elapsed.Seconds(),
		quantile(sketch, 0.5), quantile(sketch, 0.9), quantile(sketch, 0.99))
	return nil
}

func (b *bench) bulk(ctx context.Context, s *holdthis.Store) error {
	entries := make([]holdthis.Statement, 0, b.iterations)
	for i := 0; i < b.iterations; i++ {
		stmt, err := s.Prepare(ctx, benchTopic, fmt.Sprintf("key:%d", i), i)
		if err != nil {
			return err
		}
		entries = append(entries, stmt)
	}

	start := time.Now()
	if err := s.SetBulk(ctx, benchTopic, "key:0", entries); err != nil {
		return err
	}
	elapsed := time.Since(start)

	ms := float64(elapsed) / float64(time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	fmt.Fprintf(b.out, "%-8s %10.0f records/ms  (%d records in %s)\n",
		"bulk", float64(b.iterations)/ms, b.iterations, elapsed)
	return nil
}

func quantile(sketch *ddsketch.DDSketch, q float64) time.Duration {
	v, err := sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return time.Duration(v) * time.Microsecond
}

func dbFiles(path string) []string {
	return []string{path, path + "-wal", path + "-shm"}
}

func removeFiles(files []string) {
	for _, f := range files {
		_ = os.Remove(f)
	}
}
