// internal/debate/turns.go
package debate

// Round math is driven by a single monotonic argument counter rather than
// separately tracked round/turn fields. A round is one pair of arguments,
// one per side.

// RoundOf derives the 1-indexed current round from the number of arguments
// played so far, capped at totalRounds.
func RoundOf(messagesPlayed, totalRounds int) int {
	round := (messagesPlayed + 1) / 2 // ceil(messagesPlayed / 2)
	if round < 1 {
		round = 1
	}
	if round > totalRounds {
		round = totalRounds
	}
	return round
}

// RoundCompleted reports whether the most recent argument closed a round.
func RoundCompleted(messagesPlayed int) bool {
	return messagesPlayed > 0 && messagesPlayed%2 == 0
}

// argumentScore is the deterministic local score awarded for a single
// argument. It only matters when the judge service is unreachable and the
// controller has to fall back to comparing accumulated scores: longer
// arguments and faster replies earn more.
func argumentScore(content string, elapsed, turnSeconds int) int {
	if content == "" {
		return 0
	}
	score := 15
	if bonus := len(content) / 40; bonus > 0 {
		if bonus > 10 {
			bonus = 10
		}
		score += bonus
	}
	if elapsed >= 0 && elapsed < turnSeconds {
		score += (turnSeconds - elapsed) / 6
	}
	return score
}
