package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"medifusion-go/internal/model"
	"medifusion-go/internal/service"
	"medifusion-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// 客户端身份来自 cookie，因此保留 gorilla 默认的同源检查。
var upgrader = websocket.Upgrader{}

// PredictHandler 负责 /predict 的 WebSocket 连接。
// 一个连接就是一次“分析页面”的挂载，拥有自己的工作流：
// 连接断开只卸载它自己，同一浏览器的其他页面不受影响。
type PredictHandler struct {
	analyses *service.AnalysisRegistry
}

// NewPredictHandler 创建一个新的 PredictHandler。
func NewPredictHandler(analyses *service.AnalysisRegistry) *PredictHandler {
	return &PredictHandler{analyses: analyses}
}

// predictMessage 是客户端发来的指令：
// {"type":"submit","symptoms":"...","file":{...}} 或 {"type":"cancel"}。
type predictMessage struct {
	Type     string       `json:"type"`
	Symptoms string       `json:"symptoms"`
	File     *predictFile `json:"file,omitempty"`
}

// predictFile 的 data 字段为 base64 编码的文件内容。
type predictFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// predictEvent 是发给客户端的消息，type 为 "state" 或 "error"。
type predictEvent struct {
	Type    string            `json:"type"`
	Data    *service.Snapshot `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
}

// socketWriter 串行化对同一连接的写操作，工作流回调和读循环都会写入。
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *socketWriter) send(ev predictEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(ev); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}

func (w *socketWriter) state(s service.Snapshot) {
	w.send(predictEvent{Type: "state", Data: &s})
}

func (w *socketWriter) sendError(msg string) {
	w.send(predictEvent{Type: "error", Message: msg})
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *PredictHandler) Handle(c *gin.Context) {
	id := clientID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，client: %s", id)

	out := &socketWriter{conn: conn}
	wf, unmount := h.analyses.Mount(id)
	unsubscribe := wf.Subscribe(out.state)

	// 提交在独立的 goroutine 中进行，读循环可以同时收到 cancel
	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup
	defer func() {
		unsubscribe()
		unmount()
		cancel()
		inflight.Wait()
		log.Infof("WebSocket 连接已关闭，client: %s", id)
	}()

	out.state(wf.Snapshot())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var msg predictMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			out.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "submit":
			sub := service.Submission{Symptoms: msg.Symptoms}
			if msg.File != nil {
				sub.Attachment = &model.Attachment{
					FileName:    msg.File.Name,
					ContentType: msg.File.ContentType,
					Data:        msg.File.Data,
				}
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				if _, err := wf.Submit(ctx, sub); err != nil {
					out.sendError(err.Error())
				}
			}()
		case "cancel":
			wf.Cancel()
		default:
			out.sendError("unknown message type: " + msg.Type)
		}
	}
}
