// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package logging

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// BadgerLogger satisfies badger.Logger. Badger's info chatter (compactions,
// value log replay) is logged at debug level.
type BadgerLogger struct {
	logger zerolog.Logger
}

// NewBadgerLogger returns a badger logger tagged with component=badger.
func NewBadgerLogger() *BadgerLogger {
	return &BadgerLogger{logger: WithComponent("badger")}
}

func (b *BadgerLogger) Errorf(format string, args ...interface{}) {
	b.logger.Error().Msg(badgerMessage(format, args))
}

func (b *BadgerLogger) Warningf(format string, args ...interface{}) {
	b.logger.Warn().Msg(badgerMessage(format, args))
}

func (b *BadgerLogger) Infof(format string, args ...interface{}) {
	b.logger.Debug().Msg(badgerMessage(format, args))
}

func (b *BadgerLogger) Debugf(format string, args ...interface{}) {
	b.logger.Debug().Msg(badgerMessage(format, args))
}

// badger terminates most of its messages with a newline.
func badgerMessage(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
