package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/webriots/cohook"
)

var (
	probeAddr    string // Address to connect to
	probePayload string // Payload sent on every round trip
	probeTimeout int    // Connect, send and receive timeout in ms
	probeCount   int    // Number of round trips per connection
	probeConns   int    // Number of concurrent connections
)

// probeCmd measures round trips against an echo server
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Connect to an echo server and time round trips",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newScheduler()
		if err != nil {
			return err
		}
		defer s.Close()

		sa, err := resolve(probeAddr)
		if err != nil {
			return err
		}

		var probeErr error
		s.Go(func(ctx context.Context) {
			task := cohook.MustTaskFromContext(ctx)
			g := task.Group()
			for conn := 0; conn < probeConns; conn++ {
				g.Go(func(ctx context.Context) error {
					return probe(ctx, s.Hooks(), sa, conn)
				})
			}
			probeErr = g.Wait(task)
		})
		if err := run(cmd.Context(), s); err != nil {
			return err
		}
		return probeErr
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeAddr, "addr", "127.0.0.1:7000", "Echo server address")
	probeCmd.Flags().StringVar(&probePayload, "payload", "ping", "Payload to send")
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 500, "Timeout in ms for connect, send and receive")
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "Number of round trips per connection")
	probeCmd.Flags().IntVar(&probeConns, "conns", 1, "Number of concurrent connections")
}

func probe(ctx context.Context, h *cohook.Hooks, sa *unix.SockaddrInet4, conn int) error {
	log := logrus.WithField("conn", conn)

	fd, err := h.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	defer h.Close(fd)

	tv := msToTimeval(probeTimeout)
	if err := h.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, tv); err != nil {
		return fmt.Errorf("SO_SNDTIMEO: %w", err)
	}
	if err := h.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, tv); err != nil {
		return fmt.Errorf("SO_RCVTIMEO: %w", err)
	}

	start := time.Now()
	if err := h.Connect(ctx, fd, sa); err != nil {
		return fmt.Errorf("connect %s: %w", probeAddr, err)
	}
	log.WithField("elapsed", time.Since(start)).Info("connected")

	payload := []byte(probePayload)
	buf := make([]byte, len(payload))
	for i := 0; i < probeCount; i++ {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		start := time.Now()
		if _, err := h.Write(ctx, fd, payload); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		for got := 0; got < len(buf); {
			n, err := h.Read(ctx, fd, buf[got:])
			if err != nil {
				return fmt.Errorf("receive: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("receive: connection closed after %d of %d bytes", got, len(buf))
			}
			got += n
		}
		log.WithFields(logrus.Fields{
			"seq":     i,
			"bytes":   len(buf),
			"elapsed": time.Since(start),
		}).Info("round trip")
	}
	return nil
}
