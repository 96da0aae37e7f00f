package models

import "fmt"

// RoomID 是連線訂閱與廣播的單位
type RoomID string

// ChatRoomID 由 (subject, counterpart) 決定，兩位參與者各自訂閱自己在前的那個房間
func ChatRoomID(subject, counterpart uint) RoomID {
	return RoomID(fmt.Sprintf("chat_%d_%d", subject, counterpart))
}

// UserRoomID 用戶的私人房間
func UserRoomID(userID uint) RoomID {
	return RoomID(fmt.Sprintf("user_%d", userID))
}

// PairRooms 回傳一段對話的兩個房間
func PairRooms(a, b uint) [2]RoomID {
	return [2]RoomID{ChatRoomID(a, b), ChatRoomID(b, a)}
}
