package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoopbackCommand(a *app) *cobra.Command {
	var showCredentials bool

	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "启动本地回环代理并显示地址",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, stop, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			info, err := s.Loopback(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "地址: %s\n", info.Addr)
			if showCredentials {
				fmt.Fprintf(out, "代理凭据: %s\n", info.ProxyCredential)
				fmt.Fprintf(out, "LocalAPI 凭据: %s\n", info.LocalAPICredential)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCredentials, "show-credentials", false, "同时输出凭据")
	return cmd
}
