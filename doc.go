// Package tailscale 以 Go 句柄的形式提供 libtailscale 网格节点
//
// 原生库暴露的是一组阻塞的整数描述符函数。本包在其上提供：
//
//   - Builder / New：配置并创建 Session
//   - Session：加入网格、监听、拨号、查询地址
//   - Listener：实现 net.Listener，接受入站连接
//   - Conn：实现 net.Conn，读写由 Go netpoller 驱动
//
// 可能阻塞的原生调用在独立 goroutine 中执行，调用方通过 context.Context 取消等待；
// 连接描述符被置为非阻塞并注册到运行时的就绪通知中。
//
// 快速开始:
//
//	s, err := tailscale.NewBuilder().
//	    Hostname("tsnode").
//	    Ephemeral(true).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.Up(ctx); err != nil {
//	    return err
//	}
//	ln, err := s.Listen(ctx, tailscale.TCP, ":1999")
//
// 资源生命周期：Session 的原生描述符在 Session.Close 之后、且所有 Listener、
// Conn 与进行中的原生调用都释放之后才真正关闭。
package tailscale
