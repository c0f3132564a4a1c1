package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/webriots/cohook"
)

var (
	listenAddr    string // Address the echo server binds
	idleTimeout   int    // Per-connection read timeout in ms
	acceptBackoff int64  // Pause between accept attempts in ms
	backlog       int    // Listen backlog
)

// echoCmd serves an echo protocol, one task per connection
var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run a TCP echo server",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newScheduler()
		if err != nil {
			return err
		}
		defer s.Close()

		h := s.Hooks()
		sa, err := resolve(listenAddr)
		if err != nil {
			return err
		}
		ln, err := listen(h, sa)
		if err != nil {
			return err
		}
		defer h.Close(ln)

		logrus.WithField("addr", listenAddr).Info("echo server listening")
		s.Go(func(ctx context.Context) {
			acceptLoop(ctx, h, ln)
		})
		return run(cmd.Context(), s)
	},
}

func init() {
	echoCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7000", "Address to listen on")
	echoCmd.Flags().IntVar(&idleTimeout, "idle-timeout", 5000, "Close connections idle for this many ms")
	echoCmd.Flags().Int64Var(&acceptBackoff, "accept-backoff", 5, "Pause in ms between accept attempts when none is pending")
	echoCmd.Flags().IntVar(&backlog, "backlog", 128, "Listen backlog")
}

func listen(h *cohook.Hooks, sa *unix.SockaddrInet4) (int, error) {
	ln, err := h.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := h.SetsockoptInt(ln, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = h.Close(ln)
		return -1, fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := h.Bind(ln, sa); err != nil {
		_ = h.Close(ln)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := h.Listen(ln, backlog); err != nil {
		_ = h.Close(ln)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return ln, nil
}

// acceptLoop polls the listener. Accept is not emulated, so an empty
// backlog is waited out with a task sleep.
func acceptLoop(ctx context.Context, h *cohook.Hooks, ln int) {
	task := cohook.MustTaskFromContext(ctx)
	for {
		fd, _, err := h.Accept(ln)
		if err == unix.EAGAIN {
			task.Sleep(acceptBackoff)
			continue
		}
		if err != nil {
			logrus.WithError(err).Error("accept failed")
			return
		}
		if err := h.Track(fd); err != nil {
			logrus.WithError(err).WithField("fd", fd).Warn("tracking connection failed")
			_ = h.Close(fd)
			continue
		}
		if err := h.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, msToTimeval(idleTimeout)); err != nil {
			logrus.WithError(err).WithField("fd", fd).Warn("setting idle timeout failed")
		}
		task.Go(func(ctx context.Context) {
			serve(ctx, h, fd)
		})
	}
}

func serve(ctx context.Context, h *cohook.Hooks, fd int) {
	log := logrus.WithField("fd", fd)
	defer h.Close(fd)

	log.Debug("connection opened")
	buf := make([]byte, 4096)
	for {
		n, err := h.Read(ctx, fd, buf)
		switch {
		case err == unix.ETIMEDOUT:
			log.Debug("connection idle, closing")
			return
		case err != nil:
			log.WithError(err).Warn("read failed")
			return
		case n == 0:
			log.Debug("connection closed by peer")
			return
		}
		if _, err := h.Write(ctx, fd, buf[:n]); err != nil {
			log.WithError(err).Warn("write failed")
			return
		}
	}
}
