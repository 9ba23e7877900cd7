// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var zapLevels = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

// ParseLevel 解析日志级别 未知级别返回 false
func ParseLevel(s string) (zapcore.Level, bool) {
	level, ok := zapLevels[Level(strings.ToLower(strings.TrimSpace(s)))]
	return level, ok
}

// Options Logger 配置
//
// Filename 为空时输出到标准输出
type Options struct {
	Stdout     bool   `config:"stdout"`
	Level      string `config:"level"`
	Filename   string `config:"filename"`
	MaxSize    int    `config:"maxSize"` // unit: MB
	MaxAge     int    `config:"maxAge"`  // unit: days
	MaxBackups int    `config:"maxBackups"`
}

func (o Options) withDefaults() Options {
	if o.Filename == "" {
		o.Stdout = true
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 10
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 7
	}
	if o.MaxSize <= 0 {
		o.MaxSize = 100
	}
	return o
}

type Logger struct {
	sugared *zap.SugaredLogger
	level   zap.AtomicLevel
}

func (l Logger) Debugf(template string, args ...any) {
	l.sugared.Debugf(template, args...)
}

func (l Logger) Infof(template string, args ...any) {
	l.sugared.Infof(template, args...)
}

func (l Logger) Warnf(template string, args ...any) {
	l.sugared.Warnf(template, args...)
}

func (l Logger) Errorf(template string, args ...any) {
	l.sugared.Errorf(template, args...)
}

// SetLevel 动态调整日志级别 未知级别将被忽略
func (l Logger) SetLevel(s string) bool {
	level, ok := ParseLevel(s)
	if ok {
		l.level.SetLevel(level)
	}
	return ok
}

// Enabled 返回该级别的日志是否会被输出
func (l Logger) Enabled(level zapcore.Level) bool {
	return l.level.Enabled(level)
}

func (l Logger) Sync() error {
	return l.sugared.Sync()
}

func newWriteSyncer(opt Options) zapcore.WriteSyncer {
	if opt.Stdout {
		return zapcore.AddSync(os.Stdout)
	}

	if err := os.MkdirAll(filepath.Dir(opt.Filename), os.ModePerm); err != nil {
		panic(err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    opt.MaxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		LocalTime:  true,
	})
}

// New 创建并返回 Logger 实例 未指定级别时默认为 info
func New(opt Options) Logger {
	opt = opt.withDefaults()

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Local().Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if l, ok := ParseLevel(opt.Level); ok {
		level.SetLevel(l)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), newWriteSyncer(opt), level)
	return Logger{
		sugared: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Sugar(),
		level:   level,
	}
}

var std = New(Options{Stdout: true})

// SetOptions 设置全局 Logger 配置 需在初始化阶段调用
func SetOptions(opt Options) {
	std = New(opt)
}

// SetLoggerLevel 设置全局 Logger 日志级别
func SetLoggerLevel(s string) bool {
	return std.SetLevel(s)
}

func Debugf(template string, args ...any) {
	std.Debugf(template, args...)
}

func Infof(template string, args ...any) {
	std.Infof(template, args...)
}

func Warnf(template string, args ...any) {
	std.Warnf(template, args...)
}

func Errorf(template string, args ...any) {
	std.Errorf(template, args...)
}
