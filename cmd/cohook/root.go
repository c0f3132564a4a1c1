package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/webriots/cohook"
)

var (
	configPath string // YAML config file
	logLevel   string // Log verbosity level, overrides the config
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:          "cohook",
	Short:        "Run socket code as cooperatively scheduled tasks",
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(probeCmd)
}

// newScheduler loads the config, sets up logging and builds a
// scheduler from it.
func newScheduler() (*cohook.Scheduler, error) {
	cfg := cohook.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = cohook.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)
	logrus.Debugf("config: %+v", cfg)

	return cohook.New(cohook.WithConfig(cfg))
}

// run drives s until its tasks finish or the process is interrupted.
func run(ctx context.Context, s *cohook.Scheduler) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	err := s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logrus.Info("interrupted")
		return nil
	}
	return err
}

// resolve turns host:port into an IPv4 socket address.
func resolve(addr string) (*unix.SockaddrInet4, error) {
	tcp, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}
	sa := &unix.SockaddrInet4{Port: tcp.Port}
	if tcp.IP != nil {
		ip4 := tcp.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%s is not an IPv4 address", addr)
		}
		copy(sa.Addr[:], ip4)
	}
	return sa, nil
}

func msToTimeval(ms int) *unix.Timeval {
	tv := unix.NsecToTimeval(int64(ms) * 1e6)
	return &tv
}
