package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	tailscale "github.com/dep2p/go-tailscale"
)

func newSendCommand(a *app) *cobra.Command {
	var (
		network string
		reply   bool
	)

	cmd := &cobra.Command{
		Use:   "send <addr> [message]",
		Short: "拨号并发送数据",
		Long: `拨号 addr（如 peer:1999）并发送 message；未给出 message 时发送标准输入。
使用 --reply 时在写完后读取对端的回复并输出。`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				src = strings.NewReader(args[1])
			}
			return a.runSend(cmd.Context(), cmd.OutOrStdout(), network, args[0], src, reply)
		},
	}
	cmd.Flags().StringVar(&network, "network", "tcp", "网络类型 (tcp/udp)")
	cmd.Flags().BoolVar(&reply, "reply", false, "读取并输出对端回复")
	return cmd
}

func (a *app) runSend(ctx context.Context, out io.Writer, network, addr string, src io.Reader, reply bool) error {
	n, err := tailscale.ParseNetwork(network)
	if err != nil {
		return err
	}

	s, stop, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer stop()

	c, err := s.Dial(ctx, n, addr)
	if err != nil {
		return err
	}
	defer c.Close()

	written, err := io.Copy(c, src)
	if err != nil {
		return fmt.Errorf("发送失败: %w", err)
	}
	cmdLog.Info("已发送", "addr", addr, "bytes", written)

	if !reply {
		return nil
	}
	if _, err := io.CopyN(out, c, written); err != nil {
		return fmt.Errorf("读取回复失败: %w", err)
	}
	return nil
}
