// Package feed 实时可视化 WebSocket 出口
//
// /ws/ecg 升级后每秒广播一帧原始心电窗口与当前心率。写超时即断开
// 慢客户端，广播循环从不被单个连接拖住。
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
)

// writeTimeout 单个客户端的写入上限，超时即判定为慢客户端
const writeTimeout = 200 * time.Millisecond

// Frame 每秒一帧的可视化负载
type Frame struct {
	Index   uint64 `json:"index"` // 窗口尾端的逻辑序号
	Samples []int  `json:"samples"`
	BPM     int    `json:"bpm"`
	Valid   bool   `json:"valid"`
}

// Hub 连接集合
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *zap.Logger
}

// NewHub 创建连接集合
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast 向全部客户端写一帧，写失败或超时的连接被移除
func (h *Hub) Broadcast(data []byte) {
	for _, c := range h.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping slow feed client", zap.Error(err))
			_ = c.Close()
			h.remove(c)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler /ws/ecg 升级处理
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.add(conn)
		defer func() {
			h.remove(conn)
			conn.Close()
		}()

		// 只为感知断开而读，客户端消息被忽略
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// Server 可视化出口服务
type Server struct {
	hub    *Hub
	addr   string
	b      *bus.Bus
	logger *zap.Logger
	srv    *http.Server
}

// NewServer 创建可视化出口服务
func NewServer(addr string, b *bus.Bus, logger *zap.Logger) *Server {
	hub := NewHub(logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/ecg", hub.Handler())

	return &Server{
		hub:    hub,
		addr:   addr,
		b:      b,
		logger: logger,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Run 运行服务与广播循环直到 ctx 取消
func (s *Server) Run(ctx context.Context) {
	go func() {
		s.logger.Info("ecg feed listening", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("feed server stopped", zap.Error(err))
		}
	}()

	sub := s.b.EcgWindow.Subscribe()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.srv.Shutdown(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			if sub.Fresh() {
				s.broadcastFrame()
			}
		}
	}
}

func (s *Server) broadcastFrame() {
	if s.hub.Count() == 0 {
		return
	}

	win := s.b.EcgWindow.Get()
	hr := s.b.HeartRate.Get()
	data, err := json.Marshal(Frame{
		Index:   win.NextIndex,
		Samples: win.Samples,
		BPM:     hr.BPM,
		Valid:   hr.ValidSignal,
	})
	if err != nil {
		s.logger.Error("failed to marshal feed frame", zap.Error(err))
		return
	}
	s.hub.Broadcast(data)
}
