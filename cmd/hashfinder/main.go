// Command hashfinder prints the first F non-negative integers whose digest
// ends with N zero characters, one "<candidate>, <digest>" line per match in
// the order the worker pool confirms them.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	hashfinder "example.org/hashfinder"
	"example.org/hashfinder/digest"
	"example.org/hashfinder/findlib"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "hashfinder:", err)
		if errors.Is(err, hashfinder.ErrInvalidConfig) {
			return exitConfig
		}
		return exitFailed
	}
	return exitOK
}

type options struct {
	configPath  string
	n           uint8
	f           uint32
	workers     int
	model       string
	poll        string
	backoffMax  string
	digest      string
	logLevel    string
	traceServer string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options
	defaults := hashfinder.DefaultFinderConfig()

	cmd := &cobra.Command{
		Use:           "hashfinder -N <uint8> -F <uint32>",
		Short:         "Find integers whose digest ends with a run of zeros",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &hashfinder.ConfigError{Field: "args", Reason: "unexpected argument " + args[0]}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return search(cmd, config, stdout, stderr)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &hashfinder.ConfigError{Field: "flags", Reason: err.Error()}
	})

	flags := cmd.Flags()
	flags.Uint8VarP(&opts.n, "zeros", "N", 0, "number of trailing zeros a digest must end with")
	flags.Uint32VarP(&opts.f, "matches", "F", 0, "number of matches to find before stopping")
	flags.IntVarP(&opts.workers, "workers", "W", defaults.Workers, "number of workers")
	flags.StringVar(&opts.configPath, "config", "", "JSON or YAML config file")
	flags.StringVar(&opts.model, "model", defaults.Model, "execution model: threads or tasks")
	flags.StringVar(&opts.poll, "poll", defaults.Poll, "poll strategy: busy, yield or backoff")
	flags.StringVar(&opts.backoffMax, "backoff-max", defaults.BackoffMaxInterval, "longest sleep of the backoff poll strategy")
	flags.StringVar(&opts.digest, "digest", defaults.Digest, "digest: "+strings.Join(digest.Names(), ", "))
	flags.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "log level written to stderr")
	flags.StringVar(&opts.traceServer, "trace-server", "", "tracing server address, empty disables tracing")
	return cmd
}

// loadConfig starts from the defaults, applies the config file if any, then
// every flag set on the command line.
func loadConfig(cmd *cobra.Command, opts options) (hashfinder.FinderConfig, error) {
	config := hashfinder.DefaultFinderConfig()
	flags := cmd.Flags()

	if opts.configPath != "" {
		if err := hashfinder.ReadConfig(opts.configPath, &config); err != nil {
			return config, &hashfinder.ConfigError{Field: "config", Reason: err.Error()}
		}
	} else {
		if !flags.Changed("zeros") {
			return config, &hashfinder.ConfigError{Field: "N", Reason: "required, pass -N <uint8>"}
		}
		if !flags.Changed("matches") {
			return config, &hashfinder.ConfigError{Field: "F", Reason: "required, pass -F <uint32>"}
		}
	}

	if flags.Changed("zeros") {
		config.ZeroRunLength = opts.n
	}
	if flags.Changed("matches") {
		config.TargetMatches = opts.f
	}
	if flags.Changed("workers") {
		config.Workers = opts.workers
	}
	if flags.Changed("model") {
		config.Model = opts.model
	}
	if flags.Changed("poll") {
		config.Poll = opts.poll
	}
	if flags.Changed("backoff-max") {
		config.BackoffMaxInterval = opts.backoffMax
	}
	if flags.Changed("digest") {
		config.Digest = opts.digest
	}
	if flags.Changed("log-level") {
		config.LogLevel = opts.logLevel
	}
	if flags.Changed("trace-server") {
		config.TracerServerAddr = opts.traceServer
	}
	return config, config.Validate()
}

func newLogger(level zapcore.Level, w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

func search(cmd *cobra.Command, config hashfinder.FinderConfig, stdout, stderr io.Writer) error {
	level, _ := config.Level()
	log := newLogger(level, stderr)
	defer log.Sync()

	client := hashfinder.NewClient(config, findlib.NewFinder(), log)
	if err := client.Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Find(ctx, config.ZeroRunLength, config.TargetMatches); err != nil {
		client.Close()
		return err
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for r := range client.NotifyChannel {
			fmt.Fprintf(stdout, "%d, %s\n", r.Candidate, r.Digest)
		}
	}()

	res, err := client.Wait()
	closeErr := client.Close()
	<-printed

	if res != nil {
		log.Info("search complete",
			zap.Int("matches", len(res.Matches)),
			zap.Uint64("assigned", res.Assigned),
			zap.Duration("elapsed", res.Elapsed))
	}
	if err != nil {
		return err
	}
	return closeErr
}
