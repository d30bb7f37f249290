// Copyright 2025 Reify Labs, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build debug

// Package debug includes debugging helpers.
//
// Everything in this package compiles to nothing unless the debug build tag
// is set.
package debug

import (
	"flag"
	"fmt"
	"os"
	"regexp"

	"github.com/timandy/routine"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Enabled is true if the library is being built with the debug tag, which
// enables various debugging features.
const Enabled = true

var (
	debugPattern *regexp.Regexp
	logger       *zap.Logger
)

func init() {
	flag.Func("reify.filter", "regexp to filter debug logs by", func(s string) (err error) {
		debugPattern, err = regexp.Compile(s)
		return err
	})

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	logger = zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		zapcore.DebugLevel,
	))
}

// Log prints debugging information to stderr.
//
// context is optional args for fmt.Sprintf that are printed before operation.
// This is useful for cases where you want information identifying a set of
// related operations to appear before the operation does.
func Log(context []any, operation string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if len(context) >= 1 {
		prefix := fmt.Sprintf(context[0].(string), context[1:]...)
		msg = prefix + " " + msg
	}

	if debugPattern != nil && !debugPattern.MatchString(operation+": "+msg) {
		return
	}

	logger.Debug(msg,
		zap.String("op", operation),
		zap.Uint64("goroutine", routine.Goid()),
	)
}

// Assert panics if cond is false, but only in debug mode.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("reify: internal assertion failed: "+format, args...))
	}
}

// Value is a value of any type that only exists when the debug tag is
// enabled. When disabled, this struct is replaced with an empty struct.
type Value[T any] struct {
	x T
}

// Get returns a pointer to this value. Panics if not in debug mode.
func (v *Value[T]) Get() *T { return &v.x }
