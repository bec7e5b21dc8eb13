package model

import "time"

// Message represents a chat message. Messages are immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the body accepted by POST /messages
type SendMessageRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}
