// Package main 提供 tsnode 命令行入口
//
// tsnode 是一个基于 go-tailscale 的演示节点，可作为回显服务端、
// 发送端，或用于查看节点地址与原生日志。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
