package cli

import (
	"log/slog"

	"github.com/roach88/quorum/internal/cards"
	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/export"
	"github.com/roach88/quorum/internal/meeting"
	"github.com/roach88/quorum/internal/platform"
	"github.com/roach88/quorum/internal/poll"
	"github.com/roach88/quorum/internal/presence"
	"github.com/roach88/quorum/internal/sched"
	"github.com/roach88/quorum/internal/settings"
	"github.com/roach88/quorum/internal/store"
)

// stack is the wired engine: store, scheduler, and dispatcher sharing
// one database.
type stack struct {
	store      *store.Store
	scheduler  *sched.Scheduler
	dispatcher *meeting.Dispatcher
	polls      *poll.Engine
}

// buildStack wires the engine over an already-open store. fireObserver,
// when non-nil, is called for every deadline the scheduler fires, in
// addition to the dispatcher.
func buildStack(st *store.Store, cfg config.Config, msgr platform.Messenger, logger *slog.Logger, fireObserver func(entity.Deadline)) *stack {
	tracker := presence.NewTracker(st)
	renderer := cards.NewRenderer()
	resolver := settings.NewResolver(st)

	// The scheduler fires into the dispatcher, which is built after the
	// poll engine the scheduler serves. The indirection breaks the loop.
	var disp *meeting.Dispatcher
	scheduler := sched.New(st, func(d entity.Deadline) {
		if fireObserver != nil {
			fireObserver(d)
		}
		disp.HandleDeadline(d)
	}, logger)

	polls := poll.NewEngine(st, tracker, msgr, renderer, scheduler, logger)
	disp = meeting.NewDispatcher(meeting.Config{
		Store:            st,
		Resolver:         resolver,
		Presence:         tracker,
		Polls:            polls,
		Messenger:        msgr,
		Renderer:         renderer,
		Exporter:         export.NewCSV(),
		Logger:           logger,
		DefaultPollLimit: cfg.DefaultPollLimit,
	})

	return &stack{
		store:      st,
		scheduler:  scheduler,
		dispatcher: disp,
		polls:      polls,
	}
}
