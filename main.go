package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"partix/internal/backup"
	"partix/internal/disk"
	"partix/internal/partition"
	"partix/internal/session"
	"partix/internal/table"
)

var appversion = "0.1.0"

type options struct {
	historyFile       string
	devDir            string
	backupDir         string
	backupCompression string
	debug             bool
	noColor           bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "partix [device]",
		Short:        "Interactive shell for inspecting and editing GPT partition tables",
		Version:      appversion,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PreRunE: func(*cobra.Command, []string) error {
			_, err := backup.Extension(opts.backupCompression)

			return err
		},
		RunE: func(_ *cobra.Command, args []string) error {
			var device string
			if len(args) == 1 {
				device = args[0]
			}

			return run(opts, device)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.historyFile, "history-file", filepath.Join(os.TempDir(), "partix_history"), "file to keep command history in")
	flags.StringVar(&opts.devDir, "dev-dir", "/dev", "directory scanned for devices when none is selected")
	flags.StringVar(&opts.backupDir, "backup-dir", "", "save a compressed copy of the partition table here before every write")
	flags.StringVar(&opts.backupCompression, "backup-compression", "zstd", "backup compression ("+strings.Join(backup.Algorithms, ", ")+")")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	return config.Build()
}

func run(opts options, device string) error {
	logger, err := newLogger(opts.debug)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}

	defer logger.Sync() //nolint:errcheck

	terminal := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	opener := disk.NewBlockOpener(logger)
	codec := table.GPT{}

	deleter := &partition.Deleter{
		Opener: opener,
		Codec:  codec,
		Logger: logger,
	}

	if opts.backupDir != "" {
		snapshotter, err := backup.NewSnapshotter(opts.backupDir, opts.backupCompression, logger)
		if err != nil {
			return err
		}

		deleter.Backup = snapshotter
	}

	sess := session.New(session.Config{
		Opener:  opener,
		Codec:   codec,
		Scanner: partition.NewScanner(opener, codec, opts.devDir, logger),
		Deleter: deleter,
		Logger:  logger,
		Out:     os.Stdout,
		Color:   terminal && !opts.noColor,
		Live:    terminal,
	}, device)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Partix >> ",
		HistoryFile:     opts.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("error starting line editor: %w", err)
	}

	defer rl.Close() //nolint:errcheck

	return sess.Run(rl)
}
