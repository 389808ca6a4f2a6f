package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"pipesort.dev/pipesort/logging"
	"pipesort.dev/pipesort/pipeline"
	"pipesort.dev/pipesort/sortcheck"
	"pipesort.dev/pipesort/storage/locations"
	"pipesort.dev/pipesort/telemetry"
)

func main() {
	app := &cli.App{
		Name:  "pipesort",
		Usage: "Sort byte values through a pipeline of merging stages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "one of debug, info, warn or error",
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := logging.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return err
			}
			logging.SetLevel(level)
			slog.SetDefault(slog.New(logging.NewTextHandler()))
			return nil
		},
		Commands: []*cli.Command{{
			Name:  "sort",
			Usage: "Run the whole pipeline in this process",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "stages",
					Usage: "number of ranks including source and sink, 0 sizes the pipeline to the input",
				},
				&cli.StringFlag{
					Name:  "input",
					Value: "numbers",
					Usage: "local path, s3://bucket/key or - for stdin",
				},
				&cli.StringFlag{
					Name:  "output",
					Value: locations.Stdio,
					Usage: "local path, s3://bucket/key or - for stdout",
				},
				&cli.BoolFlag{
					Name:  "strict",
					Usage: "require the input to fill the pipeline exactly",
				},
				&cli.BoolFlag{
					Name:  "echo-input",
					Usage: "print the input values on one line before the sorted output",
				},
				&cli.BoolFlag{
					Name:  "verify",
					Usage: "check the output is an ordered permutation of the input",
				},
				&cli.DurationFlag{
					Name:  "stall-timeout",
					Value: 10 * time.Second,
					Usage: "abort when no element moved for this long, 0 disables",
				},
				&cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "serve Prometheus metrics on this address while sorting",
				},
			},
			Action: func(ctx *cli.Context) error {
				return runSort(ctx.Context, sortParams{
					stages:       ctx.Int("stages"),
					input:        ctx.String("input"),
					output:       ctx.String("output"),
					strict:       ctx.Bool("strict"),
					echoInput:    ctx.Bool("echo-input"),
					verify:       ctx.Bool("verify"),
					stallTimeout: ctx.Duration("stall-timeout"),
					metricsAddr:  ctx.String("metrics-addr"),
				}, os.Stderr)
			},
		}, {
			Name:  "stage",
			Usage: "Run one rank of a pipeline whose ranks are connected over TCP",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:     "rank",
					Usage:    "position of this process, 0 is the source",
					Required: true,
				},
				&cli.IntFlag{
					Name:     "stages",
					Usage:    "number of ranks in the pipeline",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "listen",
					Usage: "address the upstream rank connects to",
				},
				&cli.StringFlag{
					Name:  "downstream",
					Usage: "address of the next rank",
				},
				&cli.StringFlag{
					Name:  "input",
					Value: "numbers",
					Usage: "input read by rank 0",
				},
				&cli.StringFlag{
					Name:  "output",
					Value: locations.Stdio,
					Usage: "where the last rank writes the sorted values",
				},
				&cli.BoolFlag{
					Name:  "strict",
					Usage: "require the input to fill the pipeline exactly",
				},
				&cli.BoolFlag{
					Name:  "echo-input",
					Usage: "rank 0 writes the input values on one line to --output",
				},
			},
			Action: func(ctx *cli.Context) error {
				return runStage(ctx.Context, stageParams{
					rank:       ctx.Int("rank"),
					stages:     ctx.Int("stages"),
					listen:     ctx.String("listen"),
					downstream: ctx.String("downstream"),
					input:      ctx.String("input"),
					output:     ctx.String("output"),
					strict:     ctx.Bool("strict"),
					echoInput:  ctx.Bool("echo-input"),
				})
			},
		}, {
			Name:  "gen",
			Usage: "Write random byte values to sort",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:     "count",
					Usage:    "number of values",
					Required: true,
				},
				&cli.Int64Flag{
					Name:  "seed",
					Usage: "seed for reproducible values, defaults to the current time",
				},
				&cli.StringFlag{
					Name:  "output",
					Value: "numbers",
					Usage: "local path, s3://bucket/key or - for stdout",
				},
			},
			Action: func(ctx *cli.Context) error {
				seed := time.Now().UnixNano()
				if ctx.IsSet("seed") {
					seed = ctx.Int64("seed")
				}
				return runGen(ctx.Context, ctx.Int("count"), seed, ctx.String("output"), os.Stderr)
			},
		}},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

type sortParams struct {
	stages       int
	input        string
	output       string
	strict       bool
	echoInput    bool
	verify       bool
	stallTimeout time.Duration
	metricsAddr  string
}

func runSort(ctx context.Context, p sortParams, report io.Writer) error {
	input, err := locations.ReadFile(ctx, p.input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if p.metricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := telemetry.Serve(mctx, p.metricsAddr); err != nil {
				slog.Error("metrics server failed", "err", err)
			}
		}()
	}

	var out bytes.Buffer
	result, err := pipeline.Sort(ctx, pipeline.Config{
		Stages:       p.stages,
		Strict:       p.strict,
		StallTimeout: p.stallTimeout,
		Output:       &out,
		EchoInput:    p.echoInput,
	}, input)
	if err != nil {
		return err
	}

	if p.verify {
		if err := sortcheck.Verify(input, result.Values); err != nil {
			return err
		}
		printer := message.NewPrinter(language.English)
		printer.Fprintf(report, "verified %d values sorted by %d stages (run %s)\n", len(result.Values), result.Stages, result.RunID)
	}
	return locations.WriteFile(ctx, p.output, out.Bytes())
}

type stageParams struct {
	rank       int
	stages     int
	listen     string
	downstream string
	input      string
	output     string
	strict     bool
	echoInput  bool
}

// runStage runs one rank. The last rank writes the sorted values to output;
// rank 0 writes the input line there when echoInput is set.
func runStage(ctx context.Context, p stageParams) error {
	params := pipeline.RankParams{
		Rank:       p.rank,
		Stages:     p.stages,
		Listen:     p.listen,
		Downstream: p.downstream,
		Strict:     p.strict,
		EchoInput:  p.echoInput,
	}
	if p.rank == 0 {
		input, err := locations.ReadFile(ctx, p.input)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		params.Input = bytes.NewReader(input)
	}

	var out bytes.Buffer
	params.Output = &out
	if _, err := pipeline.RunRank(ctx, params); err != nil {
		return err
	}
	if p.rank == p.stages-1 || (p.rank == 0 && p.echoInput) {
		return locations.WriteFile(ctx, p.output, out.Bytes())
	}
	return nil
}

func runGen(ctx context.Context, count int, seed int64, output string, report io.Writer) error {
	if count < 0 {
		return fmt.Errorf("count must not be negative, got %d", count)
	}
	values := make([]byte, count)
	rand.New(rand.NewSource(seed)).Read(values)

	if err := locations.WriteFile(ctx, output, values); err != nil {
		return err
	}
	if output != locations.Stdio {
		printer := message.NewPrinter(language.English)
		printer.Fprintf(report, "wrote %d values to %s, a pipeline of %d stages sorts them\n", count, output, pipeline.StagesFor(count))
	}
	return nil
}
