package cache

import "github.com/joeycumines/logiface"

func logEvent(log *logiface.Logger[logiface.Event], msg string) { log.Info().Log(msg) }
