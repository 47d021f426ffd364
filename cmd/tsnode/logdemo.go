package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	tailscale "github.com/dep2p/go-tailscale"
	"github.com/dep2p/go-tailscale/config"
	"github.com/dep2p/go-tailscale/internal/util/logger"
)

// nativeLogComponent 转发的原生日志使用的组件名
const nativeLogComponent = "tailscale/native"

func newLogDemoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logdemo",
		Short: "把原生引擎日志转发到本进程日志",
		Long: `创建管道作为原生日志去向，逐行转发到组件 tailscale/native 的日志中，
加入网格并输出地址后退出。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, w, err := os.Pipe()
			if err != nil {
				return err
			}
			defer r.Close()

			forwarded := make(chan error, 1)
			go func() { forwarded <- logger.ForwardLines(r, nativeLogComponent) }()

			// 会话成功创建后 w 归会话所有
			a.cfg.Log.Mode = config.LogModeDefault
			s, stop, err := a.openSession(cmd.Context(), tailscale.WithLogFile(w))
			if err != nil {
				w.Close()
				<-forwarded
				return err
			}

			ips, err := s.IPs()
			stop()
			if ferr := <-forwarded; ferr != nil {
				cmdLog.Warn("转发原生日志失败", "error", ferr)
			}
			if err != nil {
				return err
			}
			if ips == nil {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "尚未分配地址")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", ips.IPv4, ips.IPv6)
			return err
		},
	}
}
