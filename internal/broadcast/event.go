package broadcast

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventPlayerJoined  EventType = "player_joined"
	EventTurnSubmitted EventType = "turn_submitted"
)

// Event is the payload fanned out to a game's subscribers.
type Event struct {
	Type       EventType `json:"type"`
	PlayerName string    `json:"player_name"`
	TurnNumber int       `json:"turn_number,omitempty"`
	Message    string    `json:"message"`
	ServerTS   int64     `json:"server_ts"`
}

func PlayerJoined(playerName string) Event {
	return Event{
		Type:       EventPlayerJoined,
		PlayerName: playerName,
		Message:    fmt.Sprintf("%s joined the game", playerName),
		ServerTS:   time.Now().UnixMilli(),
	}
}

func TurnSubmitted(playerName string, turnNumber int) Event {
	return Event{
		Type:       EventTurnSubmitted,
		PlayerName: playerName,
		TurnNumber: turnNumber,
		Message:    fmt.Sprintf("%s submitted turn %d", playerName, turnNumber),
		ServerTS:   time.Now().UnixMilli(),
	}
}
