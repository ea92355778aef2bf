package dto

import "agent-chat-engine/internal/model"

type SendChatRequest struct {
	Message string `json:"message" validate:"required,min=1"`
}

type AnswerQuestionRequest struct {
	MessageIndex int `json:"messageIndex" validate:"gte=0"`
}

type SelectOptionRequest struct {
	MessageIndex  int    `json:"messageIndex" validate:"gte=0"`
	QuestionIndex int    `json:"questionIndex" validate:"gte=0"`
	Label         string `json:"label" validate:"required"`
}

type ChatResponse struct {
	SessionId  string           `json:"sessionId,omitempty"`
	Messages   []*model.Message `json:"messages"`
	Status     string           `json:"status,omitempty"`
	Steps      []string         `json:"steps,omitempty"`
	Incomplete bool             `json:"incomplete,omitempty"`
}

type SessionSummaryResponse struct {
	Id        string `json:"id"`
	Preview   string `json:"preview"`
	CreatedAt string `json:"createdAt"`
	Active    bool   `json:"active"`
}

type ResumeSessionResponse struct {
	SessionId string           `json:"sessionId"`
	Messages  []*model.Message `json:"messages"`
}

type DeleteSessionResponse struct {
	Deleted   bool `json:"deleted"`
	WasActive bool `json:"wasActive"`
}

type UploadResponse struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FilePath string `json:"filePath,omitempty"`
	URL      string `json:"url,omitempty"`
}
