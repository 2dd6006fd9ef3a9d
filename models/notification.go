package models

import (
	"time"

	"goflare.io/pos/models/enum"
)

// Notification 是提示給收銀員的訊息
type Notification struct {
	SessionID string                 `json:"session_id"`
	Level     enum.NotificationLevel `json:"level"`
	Operation enum.CartOperation     `json:"operation"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// CartInvalidation 告訴其他畫面購物車查詢需要重新讀取
type CartInvalidation struct {
	Origin    string             `json:"origin"`
	SessionID string             `json:"session_id"`
	Operation enum.CartOperation `json:"operation"`
	CreatedAt time.Time          `json:"created_at"`
}
