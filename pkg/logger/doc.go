// Package logger builds the structured log/slog logger shared by every
// component: a text handler in dev and staging, JSON in prod, each record
// tagged with the environment.
package logger
