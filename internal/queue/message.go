package queue

import (
	"encoding/json"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"proteinshake/internal/config"
)

// BuildMsg asks a worker to build one dataset.
type BuildMsg struct {
	BuildID string       `json:"build_id"`
	Build   config.Build `json:"build"`
}

func NewBuildMsg(b config.Build) (BuildMsg, error) {
	id, err := gonanoid.New()
	if err != nil {
		return BuildMsg{}, err
	}
	return BuildMsg{BuildID: id, Build: b}, nil
}

func ParseBuildMsg(body []byte) (BuildMsg, error) {
	var msg BuildMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("invalid build message: %w", err)
	}
	if msg.BuildID == "" || msg.Build.Kind == "" {
		return msg, fmt.Errorf("invalid build message: missing build id or kind")
	}
	return msg, nil
}
