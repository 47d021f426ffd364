package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	tailscale "github.com/dep2p/go-tailscale"
)

func newEchoCommand(a *app) *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "echo [addr]",
		Short: "在网格上运行回显服务",
		Long: `在网格上监听 addr（默认 :1999），把收到的数据原样写回，
直到收到 SIGINT / SIGTERM。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := ":1999"
			if len(args) == 1 {
				addr = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runEcho(ctx, network, addr)
		},
	}
	cmd.Flags().StringVar(&network, "network", "tcp", "网络类型 (tcp/udp)")
	return cmd
}

func (a *app) runEcho(ctx context.Context, network, addr string) error {
	n, err := tailscale.ParseNetwork(network)
	if err != nil {
		return err
	}

	s, stop, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer stop()

	ln, err := s.Listen(ctx, n, addr)
	if err != nil {
		return err
	}
	cmdLog.Info("回显服务已启动", "network", n, "addr", addr)

	return tailscale.Serve(ctx, ln, echo)
}

// echo 把连接上收到的数据写回
func echo(_ context.Context, c *tailscale.Conn) {
	ip, _ := c.RemoteIP()
	cmdLog.Info("接受连接", "remote", c.RemoteAddr(), "ip", ip)
	n, err := io.Copy(c, c)
	cmdLog.Info("连接结束", "remote", c.RemoteAddr(), "bytes", n, "error", err)
}
