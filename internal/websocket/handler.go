package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// NewUpgrader 创建升级器,allowedOrigins 含 "*" 或为空时不检查 Origin
func NewUpgrader(allowedOrigins []string) gorillaWS.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// WebSocketHandler 模板变更订阅
// 每条消息是一条 JSON 变更事件
func WebSocketHandler(hub *Hub, allowedOrigins []string) gin.HandlerFunc {
	upgrader := NewUpgrader(allowedOrigins)

	return func(c *gin.Context) {
		// 1. 升级连接,失败时 Upgrade 已写回错误响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logrus.WithError(err).Debug("websocket upgrade failed")
			return
		}

		// 2. 创建并注册客户端
		client := NewClient(uuid.New().String(), hub, conn)
		if !hub.Register(client) {
			// 服务正在关闭
			_ = conn.WriteMessage(gorillaWS.CloseMessage,
				gorillaWS.FormatCloseMessage(gorillaWS.CloseGoingAway, "server shutting down"))
			conn.Close()
			return
		}

		// 3. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
