// Package run implements the command that loads a topology and streams
// it.
package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/buildinfo"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/dsp"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/telemetry"
	"github.com/tphakala/dspcore/internal/topology"
)

// options are the flags of the run command.
type options struct {
	topology string
	periods  uint64
	format   string
	rate     uint32
	channels uint32
	traceOut string
}

// Command creates the run command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a topology and stream it",
		Long: "Build the topology, prepare and start every pipeline, and tick the schedulers " +
			"until interrupted or until --periods ticks have run.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return execute(ctx, settings, opts, cmd.OutOrStdout())
		},
	}

	setupFlags(cmd, opts)
	return cmd
}

func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.topology, "topology", "t", "", "Path to the topology file")
	cmd.Flags().Uint64Var(&opts.periods, "periods", 0, "Stop after this many scheduler ticks (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.format, "format", "s16_le", "Host sample format, used with --rate")
	cmd.Flags().Uint32Var(&opts.rate, "rate", 0, "Host sample rate; 0 leaves stream params to the topology")
	cmd.Flags().Uint32Var(&opts.channels, "channels", 2, "Host channel count, used with --rate")
	cmd.Flags().StringVar(&opts.traceOut, "trace-out", "", "Write the buffer trace to this file on exit (\"-\" for stdout)")
	_ = cmd.MarkFlagRequired("topology")
}

// hostParams converts the host flags to stream params, or nil when no
// rate was given.
func (o *options) hostParams() (*audiostream.Params, error) {
	if o.rate == 0 {
		return nil, nil
	}
	spec := topology.ParamsSpec{Format: o.format, Rate: o.rate, Channels: o.channels}
	return spec.Params()
}

func execute(ctx context.Context, settings *conf.Settings, opts *options, stdout io.Writer) (err error) {
	log := logger.Global().Module("run")

	if _, err := telemetry.InitSentry(settings, buildinfo.Current()); err != nil {
		log.Warn("telemetry disabled", logger.Error(err))
	}
	defer telemetry.Flush(telemetry.FlushTimeout)

	params, err := opts.hostParams()
	if err != nil {
		return err
	}
	doc, err := topology.Load(opts.topology)
	if err != nil {
		return err
	}

	rt, err := dsp.New(settings, logger.Global().Module(dsp.ComponentDSP))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, writeTrace(rt, opts.traceOut, stdout), rt.Close())
	}()

	if err := rt.Load(doc); err != nil {
		return err
	}

	log.Info("streaming",
		logger.String("topology", doc.Name),
		logger.Duration("period", rt.Period()),
		logger.Uint64("periods", opts.periods))
	return rt.Run(ctx, params, opts.periods)
}

// writeTrace dumps the trace to path, if one was requested.
func writeTrace(rt *dsp.Runtime, path string, stdout io.Writer) error {
	switch path {
	case "":
		return nil
	case "-":
		return rt.DumpTrace(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	return errors.Join(rt.DumpTrace(f), f.Close())
}
