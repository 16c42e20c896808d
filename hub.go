package main

import (
	"encoding/json"
	"log"
)

// Message defines the structure of data exchanged via WebSocket
type Message struct {
	Type    string          `json:"type"`
	SheetID string          `json:"sheet_id"`
	Payload json.RawMessage `json:"payload"`
	User    string          `json:"user,omitempty"` // Username of the sender
}

// Hub maintains the set of active clients and broadcasts messages to the clients.
type Hub struct {
	// Registered clients per sheet.
	rooms map[string]map[*Client]bool

	// Inbound messages from the clients.
	broadcast chan *Message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client
}

func newHub() *Hub {
	return &Hub{
		broadcast:  make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// sheetPayload marshals the full sheet snapshot (Sheet.MarshalJSON locks).
func sheetPayload(sheet *Sheet) json.RawMessage {
	payload, err := json.Marshal(sheet)
	if err != nil {
		log.Printf("Error marshalling sheet %s: %v", sheet.ID, err)
		return nil
	}
	return payload
}

// filterPayload marshals just the filter state: the serialized record and
// the hidden rows the visibility layer needs.
func filterPayload(sheet *Sheet) json.RawMessage {
	rec := sheet.FilterRecord()
	var hidden []int
	if rec != nil {
		hidden = rec.CachedFilteredOut
	}
	payload, err := json.Marshal(struct {
		Filter     *FilterRangeRecord `json:"filter"`
		HiddenRows []int              `json:"hiddenRows"`
	}{rec, hidden})
	if err != nil {
		log.Printf("Error marshalling filter for sheet %s: %v", sheet.ID, err)
		return nil
	}
	return payload
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			if h.rooms[client.sheetID] == nil {
				h.rooms[client.sheetID] = make(map[*Client]bool)
			}
			h.rooms[client.sheetID][client] = true
			log.Printf("Client registered to sheet %s: %s", client.sheetID, client.userID)

			// Send current state to the new client
			sheet := globalSheetManager.GetSheet(client.sheetID)
			if sheet != nil {
				msg := &Message{
					Type:    "INIT",
					Payload: sheetPayload(sheet),
					User:    "system",
				}
				client.send <- msgToBytes(msg)
			}

		case client := <-h.unregister:
			if clients, ok := h.rooms[client.sheetID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.sheetID)
					}
					log.Printf("Client unregistered from sheet %s", client.sheetID)
				}
			}
		case message := <-h.broadcast:
			toSend := h.handleCommand(message)
			if toSend == nil {
				continue
			}

			if clients, ok := h.rooms[message.SheetID]; ok {
				for client := range clients {
					select {
					case client.send <- msgToBytes(toSend):
					default:
						close(client.send)
						delete(clients, client)
					}
				}
			}
		}
	}
}

// handleCommand applies one inbound command to the sheet state and returns
// the message to broadcast to the room, or nil to broadcast nothing.
func (h *Hub) handleCommand(message *Message) *Message {
	if message.Type == "SELECTION_COPIED" {
		// Forward selection range/values only to the same user's clients
		// within the sheet room; clients interpret the payload themselves.
		toSend := &Message{
			Type:    "SELECTION_SHARED",
			SheetID: message.SheetID,
			Payload: message.Payload,
			User:    message.User,
		}
		for _, clients := range h.rooms {
			for client := range clients {
				if client.userID != message.User {
					continue
				}
				select {
				case client.send <- msgToBytes(toSend):
				default:
					close(client.send)
					delete(clients, client)
				}
			}
		}
		return nil
	}

	sheet := globalSheetManager.GetSheet(message.SheetID)
	if sheet == nil {
		return nil
	}
	if !sheet.IsEditor(message.User) {
		log.Printf("Rejected %s from non-editor %s on sheet %s", message.Type, message.User, message.SheetID)
		return nil
	}

	switch message.Type {
	case "UPDATE_CELL":
		var update struct {
			Row   string `json:"row"`
			Col   string `json:"col"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(message.Payload, &update); err != nil {
			log.Printf("Error unmarshalling update payload: %v", err)
			return nil
		}
		sheet.SetCell(update.Row, update.Col, update.Value, message.User)
		return h.sheetUpdated(message, sheet)

	case "STYLE_CELL":
		var style struct {
			Row        string `json:"row"`
			Col        string `json:"col"`
			Background string `json:"background"`
			Bold       bool   `json:"bold"`
			Italic     bool   `json:"italic"`
		}
		if err := json.Unmarshal(message.Payload, &style); err != nil {
			log.Printf("Error unmarshalling style payload: %v", err)
			return nil
		}
		sheet.SetCellStyle(style.Row, style.Col, style.Background, style.Bold, style.Italic, message.User)
		return h.sheetUpdated(message, sheet)

	case "LOCK_CELL", "UNLOCK_CELL":
		var lock struct {
			Row string `json:"row"`
			Col string `json:"col"`
		}
		if err := json.Unmarshal(message.Payload, &lock); err != nil {
			log.Printf("Error unmarshalling lock payload: %v", err)
			return nil
		}
		var ok bool
		if message.Type == "LOCK_CELL" {
			ok = sheet.LockCell(lock.Row, lock.Col, message.User)
		} else {
			ok = sheet.UnlockCell(lock.Row, lock.Col, message.User)
		}
		if !ok {
			return nil
		}
		return h.sheetUpdated(message, sheet)

	case "RESIZE_COL":
		var update struct {
			Col   string `json:"col"`
			Width int    `json:"width"`
		}
		if err := json.Unmarshal(message.Payload, &update); err != nil {
			log.Printf("Error unmarshalling resize col payload: %v", err)
			return nil
		}
		sheet.SetColWidth(update.Col, update.Width, message.User)
		return h.sheetUpdated(message, sheet)

	case "RESIZE_ROW":
		var update struct {
			Row    string `json:"row"`
			Height int    `json:"height"`
		}
		if err := json.Unmarshal(message.Payload, &update); err != nil {
			log.Printf("Error unmarshalling resize row payload: %v", err)
			return nil
		}
		sheet.SetRowHeight(update.Row, update.Height, message.User)
		return h.sheetUpdated(message, sheet)

	case "MOVE_ROW":
		var mv struct {
			FromRow   string `json:"fromRow"`
			TargetRow string `json:"targetRow"`
		}
		if err := json.Unmarshal(message.Payload, &mv); err != nil {
			log.Printf("Error unmarshalling MOVE_ROW payload: %v", err)
			return nil
		}
		if moved, _ := sheet.MoveRowBelow(mv.FromRow, mv.TargetRow, message.User); !moved {
			return nil
		}
		return &Message{Type: "ROW_MOVED", SheetID: message.SheetID, Payload: sheetPayload(sheet), User: message.User}

	case "MOVE_COL":
		var mv struct {
			FromCol   string `json:"fromCol"`
			TargetCol string `json:"targetCol"`
		}
		if err := json.Unmarshal(message.Payload, &mv); err != nil {
			log.Printf("Error unmarshalling MOVE_COL payload: %v", err)
			return nil
		}
		if moved, _ := sheet.MoveColumnRight(mv.FromCol, mv.TargetCol, message.User); !moved {
			return nil
		}
		return &Message{Type: "COL_MOVED", SheetID: message.SheetID, Payload: sheetPayload(sheet), User: message.User}

	case "INSERT_ROW":
		var ins struct {
			TargetRow string `json:"targetRow"`
		}
		if err := json.Unmarshal(message.Payload, &ins); err != nil {
			log.Printf("Error unmarshalling INSERT_ROW payload: %v", err)
			return nil
		}
		if inserted, _ := sheet.InsertRowBelow(ins.TargetRow, message.User); !inserted {
			return nil
		}
		return h.sheetUpdated(message, sheet)

	case "INSERT_COL":
		var ins struct {
			TargetCol string `json:"targetCol"`
		}
		if err := json.Unmarshal(message.Payload, &ins); err != nil {
			log.Printf("Error unmarshalling INSERT_COL payload: %v", err)
			return nil
		}
		if inserted, _ := sheet.InsertColumnRight(ins.TargetCol, message.User); !inserted {
			return nil
		}
		return h.sheetUpdated(message, sheet)

	case "DELETE_ROW":
		var del struct {
			Row string `json:"row"`
		}
		if err := json.Unmarshal(message.Payload, &del); err != nil {
			log.Printf("Error unmarshalling DELETE_ROW payload: %v", err)
			return nil
		}
		if deleted, _ := sheet.DeleteRow(del.Row, message.User); !deleted {
			return nil
		}
		return h.sheetUpdated(message, sheet)

	case "DELETE_COL":
		var del struct {
			Col string `json:"col"`
		}
		if err := json.Unmarshal(message.Payload, &del); err != nil {
			log.Printf("Error unmarshalling DELETE_COL payload: %v", err)
			return nil
		}
		if deleted, _ := sheet.DeleteColumn(del.Col, message.User); !deleted {
			return nil
		}
		return h.sheetUpdated(message, sheet)

	case "SET_FILTER_RANGE":
		var set struct {
			Ref FilterRange `json:"ref"`
		}
		if err := json.Unmarshal(message.Payload, &set); err != nil {
			log.Printf("Error unmarshalling SET_FILTER_RANGE payload: %v", err)
			return nil
		}
		if err := sheet.SetFilterRange(set.Ref, message.User); err != nil {
			log.Printf("Error setting filter range on sheet %s: %v", message.SheetID, err)
			return nil
		}
		return h.filterUpdated(message, sheet)

	case "SET_FILTER_CRITERIA":
		var set struct {
			ColID    int             `json:"colId"`
			Criteria *ColumnCriteria `json:"criteria"` // null clears the column
			ReCalc   bool            `json:"reCalc"`
		}
		if err := json.Unmarshal(message.Payload, &set); err != nil {
			log.Printf("Error unmarshalling SET_FILTER_CRITERIA payload: %v", err)
			return nil
		}
		if err := sheet.SetFilterCriteria(set.ColID, set.Criteria, set.ReCalc, message.User); err != nil {
			log.Printf("Error setting filter criteria on sheet %s: %v", message.SheetID, err)
			return nil
		}
		return h.filterUpdated(message, sheet)

	case "CLEAR_FILTER_COLUMN":
		var clear struct {
			ColID int `json:"colId"`
		}
		if err := json.Unmarshal(message.Payload, &clear); err != nil {
			log.Printf("Error unmarshalling CLEAR_FILTER_COLUMN payload: %v", err)
			return nil
		}
		if err := sheet.SetFilterCriteria(clear.ColID, nil, true, message.User); err != nil {
			log.Printf("Error clearing filter column on sheet %s: %v", message.SheetID, err)
			return nil
		}
		return h.filterUpdated(message, sheet)

	case "RECALC_FILTER":
		if err := sheet.RecalcFilter(message.User); err != nil {
			log.Printf("Error recalculating filter on sheet %s: %v", message.SheetID, err)
			return nil
		}
		return h.filterUpdated(message, sheet)

	case "REMOVE_FILTER":
		if !sheet.RemoveFilter(message.User) {
			return nil
		}
		return h.filterUpdated(message, sheet)
	}

	// Unknown command types are forwarded untouched, as before.
	return message
}

func (h *Hub) sheetUpdated(message *Message, sheet *Sheet) *Message {
	return &Message{
		Type:    "ROW_COL_UPDATED",
		SheetID: message.SheetID,
		Payload: sheetPayload(sheet),
		User:    message.User,
	}
}

func (h *Hub) filterUpdated(message *Message, sheet *Sheet) *Message {
	return &Message{
		Type:    "FILTER_UPDATED",
		SheetID: message.SheetID,
		Payload: filterPayload(sheet),
		User:    message.User,
	}
}

func msgToBytes(msg *Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}
