package store

import "time"

type GameStatus string

const (
	GameStatusWaitingForPlayer2 GameStatus = "WAITING_FOR_PLAYER2"
	GameStatusInProgress        GameStatus = "IN_PROGRESS"
)

// Game is one two-player match. Player2Name is empty until someone joins.
type Game struct {
	ID          string     `json:"id"`
	Player1Name string     `json:"player1Name"`
	Player2Name string     `json:"player2Name,omitempty"`
	Status      GameStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (g Game) Full() bool {
	return g.Player2Name != ""
}

type Turn struct {
	ID           string    `json:"id"`
	GameID       string    `json:"gameId"`
	PlayerName   string    `json:"playerName"`
	PhotoURL     string    `json:"photoUrl"`
	Tags         []string  `json:"tags"`
	SharedTag    string    `json:"sharedTag"`
	DetectedTags []string  `json:"detectedTags"`
	TurnNumber   int       `json:"turnNumber"`
	CreatedAt    time.Time `json:"createdAt"`
}

// GameWithTurns is the read model served to clients recovering state.
type GameWithTurns struct {
	Game
	Turns []Turn `json:"turns"`
}
