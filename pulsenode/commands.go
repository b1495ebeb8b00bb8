package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"

	"github.com/cgxeiji/pulsenode"
	"github.com/cgxeiji/pulsenode/companion"
	"github.com/cgxeiji/pulsenode/mailbox"
	"github.com/cgxeiji/pulsenode/max30100"
	"github.com/cgxeiji/pulsenode/telemetry"
)

func setup(c *cli.Context) (pulsenode.Config, *zap.Logger, error) {
	cfg := pulsenode.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = pulsenode.LoadConfig(path); err != nil {
			return cfg, nil, err
		}
	}

	log, err := pulsenode.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, unix.SIGTERM)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "acquire vitals, send telemetry and publish to the mailbox",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(c, cfg, log)
		},
	}
}

func run(c *cli.Context, cfg pulsenode.Config, log *zap.Logger) (err error) {
	framer, err := cfg.Framer()
	if err != nil {
		return err
	}
	out, closeOut, err := openLinks(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeOut()) }()

	dev, err := max30100.Open(cfg.Sensor.Bus, cfg.Sensor.Addr, log, max30100.BurstSize(cfg.Sensor.Burst))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dev.Close()) }()

	pin := gpioreg.ByName(cfg.Sensor.InterruptPin)
	if pin == nil {
		return fmt.Errorf("%w: interrupt pin %q not found", pulsenode.ErrConfig, cfg.Sensor.InterruptPin)
	}

	region, closeRegion, err := openRegion(cfg.Mailbox)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeRegion()) }()

	bell := mailbox.NewBell()
	writer, err := mailbox.NewWriter(region, bell)
	if err != nil {
		return err
	}

	rate := float64(dev.Config().Rate()) / float64(physic.Hertz)
	node := pulsenode.NewNode(dev, telemetry.NewLink(out, framer, log),
		pulsenode.WithLogger(log.Named("node")),
		pulsenode.WithMailbox(writer),
		pulsenode.WithEstimator(cfg.Estimator(rate)),
		pulsenode.WithWindowSize(cfg.WindowSize),
		pulsenode.WithTemperatureInterval(cfg.TemperatureInterval),
	)

	ctx, stop := signalContext(c)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dev.Watch(ctx, pin) })
	g.Go(func() error { return node.Run(ctx) })

	// Without a shared file nobody else can read the region, so the
	// companion runs here.
	if cfg.Mailbox.Path == "" {
		reader, err := mailbox.NewReader(region)
		if err != nil {
			return err
		}
		consumer := &companion.Consumer{
			Reader:   reader,
			Doorbell: bell.C(),
			Infer:    cfg.Companion.Model.Infer,
			Log:      log,
		}
		g.Go(func() error { return consumer.Run(ctx) })
	}

	if err := g.Wait(); !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped", zap.Uint32("windows", node.Seq()), zap.Uint64("dropped", dev.Dropped()))
	return nil
}

// openLinks returns a writer sending every frame to the serial device, the
// MQTT broker, or both.
func openLinks(cfg pulsenode.TelemetryConfig) (io.Writer, func() error, error) {
	var (
		writers []io.Writer
		closers []io.Closer
	)
	closeAll := func() error {
		var errs error
		for _, c := range closers {
			errs = multierr.Append(errs, c.Close())
		}
		return errs
	}

	if cfg.Serial != "" {
		s, err := telemetry.OpenSerial(cfg.Serial)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, s)
		closers = append(closers, s)
	}
	if cfg.MQTT.Broker != "" {
		m, err := telemetry.DialMQTT(cfg.MQTT)
		if err != nil {
			return nil, nil, multierr.Append(err, closeAll())
		}
		writers = append(writers, m)
		closers = append(closers, m)
	}

	if len(writers) == 0 {
		return nil, nil, fmt.Errorf("%w: no telemetry link, set telemetry.serial or telemetry.mqtt.broker", pulsenode.ErrConfig)
	}
	return telemetry.NewFanout(writers...), closeAll, nil
}

func openRegion(cfg pulsenode.MailboxConfig) (mailbox.Region, func() error, error) {
	if cfg.Path == "" {
		return mailbox.NewRegion(), func() error { return nil }, nil
	}
	m, err := mailbox.Map(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return m.Region(), m.Close, nil
}

func companionCommand() *cli.Command {
	return &cli.Command{
		Name:  "companion",
		Usage: "score vitals published to a shared mailbox file",
		Action: func(c *cli.Context) (err error) {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Mailbox.Path == "" {
				return fmt.Errorf("%w: mailbox.path is required", pulsenode.ErrConfig)
			}
			if cfg.Companion.Poll <= 0 {
				return fmt.Errorf("%w: companion.poll must be positive", pulsenode.ErrConfig)
			}

			m, err := mailbox.Map(cfg.Mailbox.Path)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, m.Close()) }()

			reader, err := mailbox.NewReader(m.Region())
			if err != nil {
				return err
			}
			consumer := &companion.Consumer{
				Reader: reader,
				Poll:   cfg.Companion.Poll,
				Infer:  cfg.Companion.Model.Infer,
				OnScore: func(rec mailbox.Record, score float32) {
					fmt.Fprintf(c.App.Writer, "seq=%d hr=%.1f spo2=%.1f temp=%.2f score=%.3f\n",
						rec.Seq, rec.HeartRateBpm, rec.SpO2Pct, rec.TemperatureC, score)
				},
				Log: log,
			}

			ctx, stop := signalContext(c)
			defer stop()
			if err := consumer.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func tempCommand() *cli.Command {
	return &cli.Command{
		Name:  "temp",
		Usage: "print the sensor die temperature",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "every",
				Value: 500 * time.Millisecond,
				Usage: "time between readings",
			},
		},
		Action: func(c *cli.Context) (err error) {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			dev, err := max30100.Open(cfg.Sensor.Bus, cfg.Sensor.Addr, log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, dev.Close()) }()

			fmt.Fprintf(c.App.Writer, "MAX30100 rev.%d detected\n", dev.RevID)

			ctx, stop := signalContext(c)
			defer stop()
			t := time.NewTicker(c.Duration("every"))
			defer t.Stop()

			for {
				temp, err := dev.ReadTemperatureOnce()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "\rtemp = %02.2f ", temp)

				select {
				case <-ctx.Done():
					fmt.Fprintln(c.App.Writer)
					return nil
				case <-t.C:
				}
			}
		},
	}
}
