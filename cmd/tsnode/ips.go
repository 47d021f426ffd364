package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"

	"github.com/spf13/cobra"

	tailscale "github.com/dep2p/go-tailscale"
	"github.com/dep2p/go-tailscale/internal/util/addrutil"
)

func newIPsCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ips",
		Short: "显示节点在网格中的地址",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, stop, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			ips, err := s.IPs()
			if err != nil {
				return err
			}
			return printIPs(cmd.OutOrStdout(), ips, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}

type ipView struct {
	Addr string `json:"addr"`
	Type string `json:"type"`
}

// printIPs 输出地址及其类型；ips 为 nil 表示尚未分配
func printIPs(w io.Writer, ips *tailscale.IPPair, asJSON bool) error {
	var views []ipView
	if ips != nil {
		for _, ip := range []netip.Addr{ips.IPv4, ips.IPv6} {
			views = append(views, ipView{Addr: ip.String(), Type: addrutil.AddrType(ip)})
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if views == nil {
			views = []ipView{}
		}
		return enc.Encode(views)
	}

	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "尚未分配地址")
		return err
	}
	for _, v := range views {
		if _, err := fmt.Fprintf(w, "%-40s %s\n", v.Addr, v.Type); err != nil {
			return err
		}
	}
	return nil
}
