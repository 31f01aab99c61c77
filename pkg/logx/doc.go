// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so components depend on a stable, minimal API (Logger + Field)
// while sinks and levels stay hot-swappable through Service.Apply().
package logx
