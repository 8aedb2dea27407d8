package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeCommand is the inbound control message for the /loans
// observer channel (spec §4.F/§6): subscribe_country / subscribe_loan
// and their unsubscribe counterparts, matching the original Socket.IO
// namespace's event names.
type subscribeCommand struct {
	Action      string `json:"action"`
	CountryCode string `json:"country_code"`
	LoanID      string `json:"loan_id"`
}

// loansWebSocket upgrades the connection and joins the "all" room,
// then reads subscribe/unsubscribe commands until the client
// disconnects.
func (h *Handlers) loansWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("httpapi: websocket upgrade failed")
		return
	}

	client := h.hub.Register(conn)
	defer h.hub.Unregister(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd subscribeCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe_country":
			h.hub.SubscribeCountry(client, cmd.CountryCode)
		case "unsubscribe_country":
			h.hub.UnsubscribeCountry(client, cmd.CountryCode)
		case "subscribe_loan":
			h.hub.SubscribeLoan(client, cmd.LoanID)
		case "unsubscribe_loan":
			h.hub.UnsubscribeLoan(client, cmd.LoanID)
		}
	}
}
