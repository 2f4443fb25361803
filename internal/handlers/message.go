package handlers

import (
	"github.com/8gudbits/WhisperChat/internal/models"
	"github.com/8gudbits/WhisperChat/internal/services"
	"github.com/8gudbits/WhisperChat/internal/utils"
	log "github.com/sirupsen/logrus"
)

// HandleEvent parses one inbound frame and dispatches it to the coordinator.
// Every failure is reported as a private error event to the sender only; no
// failure terminates the connection.
func HandleEvent(chat *services.ChatService, conns *ConnRegistry, connID string, raw []byte) {
	var evt models.ClientEvent
	if err := utils.SafeJSONParse(raw, &evt); err != nil {
		sendError(conns, connID, "Invalid event payload")
		return
	}

	switch evt.Event {
	case models.EventJoin:
		var p models.JoinPayload
		if err := utils.SafeJSONParse(evt.Data, &p); err != nil {
			sendError(conns, connID, "Invalid event payload")
			return
		}
		if err := chat.Join(connID, p.RoomCode, p.Username); err != nil {
			sendError(conns, connID, err.Error())
		}

	case models.EventLeave:
		chat.Leave(connID)

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := utils.SafeJSONParse(evt.Data, &p); err != nil {
			sendError(conns, connID, "Invalid event payload")
			return
		}
		if err := chat.SendMessage(connID, p.Message, p.Image); err != nil {
			sendError(conns, connID, err.Error())
		}

	default:
		log.Warnf("Unknown event from %s: %s", connID, evt.Event)
		sendError(conns, connID, "Unknown event: "+evt.Event)
	}
}

func sendError(conns *ConnRegistry, connID, message string) {
	conns.SendTo(connID, models.EventError, models.ErrorEvent{Message: message})
}
