package main

import (
	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/settings"
	"github.com/Roelanb/webpsync/internal/state"
)

const recentEvents = 20

// controlPlane adapts the settings store to the API surface.
type controlPlane struct {
	*settings.Store
	state *state.BBoltStore
}

func (c *controlPlane) Config() (config.Config, bool, error) {
	return c.LoadOrDefault()
}

type stateView struct {
	Snapshot state.Snapshot `json:"snapshot"`
	Events   []state.Event  `json:"events"`
}

func (c *controlPlane) State() (any, error) {
	var v stateView
	if c.state == nil {
		return v, nil
	}
	snap, err := c.state.Snapshot()
	if err != nil {
		return nil, err
	}
	events, err := c.state.Events(recentEvents)
	if err != nil {
		return nil, err
	}
	v.Snapshot = snap
	v.Events = events
	return v, nil
}
