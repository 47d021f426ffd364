// Package native 定义 libtailscale 描述符接口的 Go 边界
//
// libtailscale 以小整数句柄表示会话、监听器与连接，所有调用都是阻塞的。
// 本包只负责跨越边界：
//   - Surface 接口一一对应 C 函数表，返回值保持原始返回码
//   - 文本参数在跨越前检查内嵌 NUL，输出缓冲由调用方分配
//   - 输出文本按 NUL 截断并校验 UTF-8
//
// 所有 cgo 代码只存在于 libtailscale_cgo.go（构建标签 libtailscale），
// 未链接原生库时 Lib() 返回一个所有调用都失败的实现。
//
// 本包不做任何错误翻译，返回码到类型化错误的转换由上层完成。
package native
