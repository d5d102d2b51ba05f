package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/HKCalvinYau/wati-automation/internal/metrics"
)

// ErrBroadcastFull 广播队列已满,消息被丢弃
var ErrBroadcastFull = errors.New("broadcast queue is full")

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 广播消息到所有客户端
	Broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	// Run 退出后关闭,此后注册与注销不再等待
	done     chan struct{}
	stopOnce sync.Once

	// 互斥锁，保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Register 注册客户端,Hub 已停止时返回 false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端,Hub 已停止时直接返回
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Run 运行 Hub,ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			metrics.SetWebSocketClients(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWebSocketClients(n)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.Broadcast:
			h.broadcast(message)
		}
	}
}

// broadcast 发送给所有客户端,发送队列已满的客户端被断开
func (h *Hub) broadcast(message []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebSocketClients(n)
}

// PublishJSON 序列化后放入广播队列,不阻塞调用方
func (h *Hub) PublishJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.Broadcast <- data:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.ID == clientID {
			return true
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
