/*
Copyright © 2025 ChinHongTan
*/

package main

import (
	"embed"
	"encoding/json"
	"fmt"
)

// The path network and per-city details never change during a game season,
// so they ship embedded in the binary rather than being fetched upstream.

//go:embed data/pathData.json data/cityDetails.json
var staticFiles embed.FS

type staticData struct {
	paths       []Path
	cityDetails map[string]CityDetails
}

func loadStaticData() (*staticData, error) {
	static := &staticData{}

	rawPaths, err := staticFiles.ReadFile("data/pathData.json")
	if err != nil {
		return nil, fmt.Errorf("read path data: %w", err)
	}
	if err := json.Unmarshal(rawPaths, &static.paths); err != nil {
		return nil, fmt.Errorf("parse path data: %w", err)
	}

	rawDetails, err := staticFiles.ReadFile("data/cityDetails.json")
	if err != nil {
		return nil, fmt.Errorf("read city details: %w", err)
	}
	if err := json.Unmarshal(rawDetails, &static.cityDetails); err != nil {
		return nil, fmt.Errorf("parse city details: %w", err)
	}

	return static, nil
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
