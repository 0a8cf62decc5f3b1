package messages

import (
	"net/http"

	"securechat/internal/chat"
	"securechat/internal/utils"
)

// ListMessagesHandler serves GET /api/messages: the whole stream,
// oldest first, decrypted.
type ListMessagesHandler struct {
	Chat *chat.Service
}

func (h *ListMessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	views, err := h.Chat.Messages(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	if len(views) == 0 {
		utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "no history", Data: views})
		return
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "messages fetched", Data: views})
}
