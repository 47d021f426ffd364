package tailscale

import (
	"errors"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-tailscale/internal/native"
)

// LogMode 原生日志去向
type LogMode int

const (
	// LogDefault 不设置，由原生库决定
	LogDefault LogMode = iota

	// LogSink 写入调用方提供的文件，构建成功后文件归 Session 所有
	LogSink

	// LogDiscard 丢弃全部原生日志
	LogDiscard
)

// Option 配置选项函数
type Option func(*options) error

// options 构建配置
type options struct {
	ephemeral  bool
	hostname   *string
	dir        *string
	authKey    *string
	controlURL *string

	logMode LogMode
	logSink *os.File

	// 阻塞调用并发上限，0 使用默认值
	maxBlockingCalls int64

	// 指标注册器，nil 时不注册
	registerer prometheus.Registerer

	// 原生实现，nil 时使用链接的 libtailscale
	lib native.Surface
}

func newOptions() *options {
	return &options{}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
//                              节点选项
// ============================================================================

// WithEphemeral 设置为临时节点，离线后自动从网格移除
func WithEphemeral(ephemeral bool) Option {
	return func(o *options) error {
		o.ephemeral = ephemeral
		return nil
	}
}

// WithHostname 设置节点主机名
func WithHostname(hostname string) Option {
	return func(o *options) error {
		o.hostname = &hostname
		return nil
	}
}

// WithDir 设置状态目录
func WithDir(dir string) Option {
	return func(o *options) error {
		o.dir = &dir
		return nil
	}
}

// WithAuthKey 设置认证密钥
func WithAuthKey(key string) Option {
	return func(o *options) error {
		o.authKey = &key
		return nil
	}
}

// WithControlURL 设置控制服务器地址
func WithControlURL(url string) Option {
	return func(o *options) error {
		o.controlURL = &url
		return nil
	}
}

// ============================================================================
//                              日志选项
// ============================================================================

// WithLogFile 将原生日志写入 f
//
// 构建成功后 f 归 Session 所有，在 Session 最终释放时关闭；
// 构建失败时 f 仍归调用方。
func WithLogFile(f *os.File) Option {
	return func(o *options) error {
		if f == nil {
			return errors.New("日志文件不能为空")
		}
		o.logMode = LogSink
		o.logSink = f
		return nil
	}
}

// WithLogDiscard 丢弃原生日志
func WithLogDiscard() Option {
	return func(o *options) error {
		o.logMode = LogDiscard
		o.logSink = nil
		return nil
	}
}

// ============================================================================
//                              运行时选项
// ============================================================================

// WithMaxBlockingCalls 限制同时在后台执行的阻塞原生调用数
func WithMaxBlockingCalls(n int64) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.New("并发上限不能为负数")
		}
		o.maxBlockingCalls = n
		return nil
	}
}

// WithMetricsRegisterer 将会话指标注册到 reg
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithNative 使用指定的原生实现（测试或自定义绑定）
func WithNative(lib native.Surface) Option {
	return func(o *options) error {
		o.lib = lib
		return nil
	}
}

// ============================================================================
//                              Builder
// ============================================================================

// Builder 会话配置构建器
//
// 所有 setter 不会失败并返回 Builder 本身，便于链式调用。
// Build 只能调用一次；之后的 setter 被忽略。
//
//	s, err := tailscale.NewBuilder().
//	    Hostname("tsnode").
//	    Dir("/var/lib/tsnode").
//	    Build()
type Builder struct {
	mu       sync.Mutex
	opts     *options
	err      error
	consumed bool
}

// NewBuilder 创建 Builder
func NewBuilder() *Builder {
	return &Builder{opts: newOptions()}
}

func (b *Builder) set(opt Option) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed || b.err != nil {
		return b
	}
	b.err = opt(b.opts)
	return b
}

// Ephemeral 设置是否为临时节点
func (b *Builder) Ephemeral(ephemeral bool) *Builder {
	return b.set(WithEphemeral(ephemeral))
}

// Hostname 设置主机名
func (b *Builder) Hostname(hostname string) *Builder {
	return b.set(WithHostname(hostname))
}

// Dir 设置状态目录
func (b *Builder) Dir(dir string) *Builder {
	return b.set(func(o *options) error {
		o.dir = &dir
		return nil
	})
}

// AuthKey 设置认证密钥
func (b *Builder) AuthKey(key string) *Builder {
	return b.set(WithAuthKey(key))
}

// ControlURL 设置控制服务器地址
func (b *Builder) ControlURL(url string) *Builder {
	return b.set(func(o *options) error {
		o.controlURL = &url
		return nil
	})
}

// LogDestination 将原生日志写入 f，nil 恢复默认
func (b *Builder) LogDestination(f *os.File) *Builder {
	return b.set(func(o *options) error {
		if f == nil {
			o.logMode = LogDefault
		} else {
			o.logMode = LogSink
		}
		o.logSink = f
		return nil
	})
}

// LogDiscard 丢弃原生日志
func (b *Builder) LogDiscard() *Builder {
	return b.set(WithLogDiscard())
}

// With 应用函数式选项；选项返回的错误在 Build 时报告
func (b *Builder) With(opts ...Option) *Builder {
	for _, opt := range opts {
		if opt != nil {
			b.set(opt)
		}
	}
	return b
}

// Build 创建会话
//
// 按固定顺序应用配置：ephemeral → dir → hostname → auth key → control url → log。
// 任一步失败时已分配的原生会话会被关闭。
func (b *Builder) Build() (*Session, error) {
	b.mu.Lock()
	if b.consumed {
		b.mu.Unlock()
		return nil, ErrBuilderConsumed
	}
	b.consumed = true
	opts, err := b.opts, b.err
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return build(opts)
}

// New 使用函数式选项创建会话
//
//	s, err := tailscale.New(
//	    tailscale.WithHostname("tsnode"),
//	    tailscale.WithEphemeral(true),
//	)
func New(opts ...Option) (*Session, error) {
	o := newOptions()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}
	return build(o)
}
