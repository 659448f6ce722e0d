package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type SendMessageParams struct {
	SessionID   string
	RoomID      string
	DisplayName string
	Text        string
}

type SendMessageResponse struct {
	Message ChatMessage
	// Conns includes the sender; everyone renders from the broadcast.
	Conns []*websocket.Conn
}

// SendMessage relays a chat message to the whole room. Messages are
// never stored; they exist only in flight.
func (s service) SendMessage(ctx context.Context, params *SendMessageParams) (SendMessageResponse, error) {
	state, err := s.roomRepo.GetState(params.RoomID)
	if err != nil {
		return SendMessageResponse{}, fmt.Errorf("failed to get room state: %w", err)
	}

	message := ChatMessage{
		ID:          uuid.NewString(),
		SenderID:    params.SessionID,
		DisplayName: params.DisplayName,
		Text:        params.Text,
		SentAt:      s.now().UnixMilli(),
	}

	return SendMessageResponse{
		Message: message,
		Conns:   s.connsFor(state.Members),
	}, nil
}
