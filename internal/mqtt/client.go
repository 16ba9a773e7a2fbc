// Package mqtt 上行链路
//
// 薄封装 paho 客户端：遗嘱 + retained 状态、后台自动重连；断连期间的
// 发布直接丢弃并计数（总线上永远有最新值，无需排队补发）。
package mqtt

import (
	"errors"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected 断连期间的发布被丢弃
var ErrNotConnected = errors.New("mqtt: not connected, publish dropped")

// Options MQTT 连接参数
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	WillTopic   string // 遗嘱主题（平台据此发现异常下线）
	WillPayload []byte
}

// Client MQTT客户端封装
type Client struct {
	client    mqtt.Client
	logger    *zap.Logger
	drops     atomic.Uint64
	onConnect atomic.Value // func()
}

// NewClient 创建MQTT客户端
// 连接在后台建立并自动重连，代理不可达不阻塞启动
func NewClient(opts Options, logger *zap.Logger) *Client {
	c := &Client{logger: logger}

	mqttOpts := mqtt.NewClientOptions()
	mqttOpts.AddBroker(opts.Broker)
	mqttOpts.SetClientID(opts.ClientID)

	if opts.Username != "" {
		mqttOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		mqttOpts.SetPassword(opts.Password)
	}

	mqttOpts.SetAutoReconnect(true)
	mqttOpts.SetCleanSession(true)
	mqttOpts.SetConnectRetry(true)
	mqttOpts.SetConnectRetryInterval(5 * time.Second)
	mqttOpts.SetMaxReconnectInterval(time.Minute)

	if opts.WillTopic != "" {
		mqttOpts.SetBinaryWill(opts.WillTopic, opts.WillPayload, 1, true)
	}

	mqttOpts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", opts.Broker))
		if fn, ok := c.onConnect.Load().(func()); ok && fn != nil {
			fn()
		}
	})
	mqttOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	c.client = mqtt.NewClient(mqttOpts)
	c.client.Connect()
	return c
}

// OnConnect 注册连接建立后的回调（用于立即补发 retained 状态）
func (c *Client) OnConnect(fn func()) {
	c.onConnect.Store(fn)
}

// Publish 发布消息
// 未连接时丢弃并计数，由下个周期的新值接替
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		c.drops.Add(1)
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Drops 断连期间被丢弃的发布次数
func (c *Client) Drops() uint64 {
	return c.drops.Load()
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
