package game

import "expvar"

var (
	metricGamesCreatedTotal   = expvar.NewInt("games_created_total")
	metricGamesJoinedTotal    = expvar.NewInt("games_joined_total")
	metricJoinRejectedTotal   = expvar.NewInt("join_rejected_total")
	metricTurnsSubmittedTotal = expvar.NewInt("turns_submitted_total")
)
