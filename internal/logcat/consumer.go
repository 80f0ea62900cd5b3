package logcat

import (
	"context"
	"sync"

	"github.com/smartdiet/netanalyzer/internal/model"
)

// StartConsumer registers a consumer that forwards messages to the
// given logger until ctx is done, then writes the messages it has
// already received and unregisters. StartConsumer registers before
// returning, so no message emitted afterwards is lost, and calls
// wg.Done when the consumer exits.
func StartConsumer(ctx context.Context, logger model.Logger, wg *sync.WaitGroup) {
	ch := make(chan *Msg, consumerBuffer)
	gq.subscribe(ch)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer gq.unsubscribe(ch)
		for {
			select {
			case m := <-ch:
				write(logger, m)
			case <-ctx.Done():
				drain(logger, ch)
				return
			}
		}
	}()
}

func drain(logger model.Logger, ch <-chan *Msg) {
	for {
		select {
		case m := <-ch:
			write(logger, m)
		default:
			return
		}
	}
}

// write maps our levels onto the three levels of logger.
func write(logger model.Logger, m *Msg) {
	switch m.Level {
	case WARNING:
		logger.Warn(m.Text)
	case NOTICE, INFO:
		logger.Info(m.Text)
	default:
		logger.Debug(m.Text)
	}
}
