// Package logging wires the logiface events every subsystem emits to a
// concrete zerolog sink, per spec.md's structured-logging requirement. Every
// other package in this module accepts a *logiface.Logger[logiface.Event]
// and treats nil as disabled; this package is the one place that builds a
// real, non-nil instance of that type.
package logging
