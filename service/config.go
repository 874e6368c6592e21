// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"time"

	"github.com/mattermost/rtcd-allocator/logger"
	"github.com/mattermost/rtcd-allocator/service/allocator"
	"github.com/mattermost/rtcd-allocator/service/api"
	"github.com/mattermost/rtcd-allocator/service/ws"
)

// Config is the top-level configuration for the allocator daemon: the
// admin/debug HTTP surface, the event fan-out websocket, the logger and
// the allocator core's own tunables (spec.md §6, SPEC_FULL.md §A.3).
type Config struct {
	API       api.Config       `toml:"api"`
	WS        ws.ServerConfig  `toml:"ws"`
	Logger    logger.Config    `toml:"logger"`
	Allocator allocator.Config `toml:"allocator"`
}

func (c Config) IsValid() error {
	if err := c.API.IsValid(); err != nil {
		return fmt.Errorf("invalid API config: %w", err)
	}
	if err := c.WS.IsValid(); err != nil {
		return fmt.Errorf("invalid WS config: %w", err)
	}
	if err := c.Logger.IsValid(); err != nil {
		return fmt.Errorf("invalid Logger config: %w", err)
	}
	if err := c.Allocator.IsValid(); err != nil {
		return fmt.Errorf("invalid Allocator config: %w", err)
	}
	return nil
}

// SetDefaults mirrors service.Config.SetDefaults in the teacher: it is
// called when no config file is present so the binary has a working
// zero-config default.
func (c *Config) SetDefaults() {
	c.API.ListenAddress = ":8045"

	c.WS.ReadBufferSize = 1024
	c.WS.WriteBufferSize = 1024
	c.WS.PingInterval = 10 * time.Second

	c.Logger.EnableConsole = true
	c.Logger.ConsoleJSON = false
	c.Logger.ConsoleLevel = "INFO"
	c.Logger.EnableFile = true
	c.Logger.FileJSON = true
	c.Logger.FileLocation = "allocatord.log"
	c.Logger.FileLevel = "DEBUG"
	c.Logger.EnableColor = false

	c.Allocator.SetDefaults()
}
