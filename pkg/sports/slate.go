package sports

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Slate is a JSON list of games. Both a bare array and {"games": [...]} are
// accepted.
type Slate struct {
	Games []Game `json:"games"`
}

// ReadSlate decodes a slate and rejects games without an ID or teams.
func ReadSlate(r io.Reader) ([]Game, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read slate: %w", err)
	}

	var games []Game
	if err := json.Unmarshal(data, &games); err != nil {
		var s Slate
		if err2 := json.Unmarshal(data, &s); err2 != nil {
			return nil, fmt.Errorf("decode slate: %w", err)
		}
		games = s.Games
	}

	for i, g := range games {
		if g.ID == "" {
			return nil, fmt.Errorf("slate game %d has no id", i)
		}
		if g.HomeTeam.Name == "" || g.AwayTeam.Name == "" {
			return nil, fmt.Errorf("slate game %s is missing a team name", g.ID)
		}
		if g.Sport == "" {
			games[i].Sport = SportNBA
		}
	}
	return games, nil
}

// LoadSlate reads a slate file.
func LoadSlate(path string) ([]Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open slate: %w", err)
	}
	defer f.Close()
	return ReadSlate(f)
}
