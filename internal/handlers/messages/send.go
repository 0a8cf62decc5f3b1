package messages

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"securechat/internal/chat"
	"securechat/internal/utils"
)

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type SendMessageResponse struct {
	ID         string    `json:"id"`
	Ciphertext string    `json:"ciphertext"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// SendMessageHandler serves POST /api/messages.
type SendMessageHandler struct {
	Chat     *chat.Service
	Validate *validator.Validate
}

func (h *SendMessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "invalid request"})
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.JSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "content required"})
		return
	}

	msg, err := h.Chat.Send(r.Context(), req.Content)
	if err != nil {
		utils.Error(w, err)
		return
	}

	resp := SendMessageResponse{
		ID:         msg.ID,
		Ciphertext: msg.Text,
		Text:       h.Chat.View(msg).Text,
		CreatedAt:  msg.CreatedAt,
	}
	utils.JSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Message sent", Data: resp})
}
