package models

// Control-plane request/response bodies.

type CreateRoomRequest struct {
	Username string `json:"username"`
}

type CreateRoomResponse struct {
	RoomCode string `json:"room_code"`
	Message  string `json:"message"`
}

type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}

type ServerInfoResponse struct {
	Service         string `json:"service"`
	Version         string `json:"version"`
	ActiveRoomCount int    `json:"active_room_count"`
}
