package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // Text в dev; JSON в stage/prod
	BackendZap Backend = "zap" // slog поверх zap
)

type Config struct {
	// Метаданные, попадающие в каждый лог
	Service    string
	Version    string
	InstanceID string

	// Управление выводом
	Level   slog.Level
	Env     Env
	Backend Backend
	Debug   bool

	// Zap sampling (только для BackendZap)
	SampleInitial    int
	SampleThereafter int
	SampleTick       int

	AddSource bool
}
