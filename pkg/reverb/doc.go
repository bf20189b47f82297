// Package reverb is a client for Lavalink audio nodes. It keeps the node's
// event gateway open, decodes every server-pushed notification into a typed
// value and hands it to the host application.
//
// # Overview
//
// The package covers:
//   - Decoding of ready, playerUpdate, stats and track event frames
//   - A gateway connection with an owned dispatch goroutine
//   - A REST client for the version, info and stats routes
//   - An in-process event router and a watermill pub/sub sink
//   - Structured logging with Zerolog
//
// # Quick Start
//
//	router := reverb.NewEventRouter()
//	router.OnTrackEnd(func(ev reverb.TrackEndEvent) {
//		if ev.Data.Reason.MayStartNext() {
//			// queue the next track for ev.Data.GuildID
//		}
//	})
//
//	cfg := reverb.NewConfig()
//	cfg.ApplicationID = 123456789
//
//	client, err := reverb.NewBuilder(cfg).WithBot(router).Build(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	log.Printf("node version %s", client.ServerVersion())
//	<-client.Done()
//
// # Configuration
//
// NewConfig starts from defaults (localhost:2333, password "youshallnotpass")
// and overlays REVERB_* environment variables, reading a .env file first if
// one exists:
//
//	REVERB_HOST=lavalink.internal
//	REVERB_PORT=2333
//	REVERB_PASSWORD=secret
//	REVERB_APPLICATION_ID=123456789
//	REVERB_SECURE=true
//
// # Dispatch
//
// Frames are handled one at a time in arrival order. Each decoded
// notification is wrapped in its host event (ReadyEvent, TrackEndEvent, ...)
// and passed to Bot.Dispatch, which must return before the next frame is
// read. A frame that fails to decode is logged and skipped. A panic in
// Dispatch is recovered and logged. The gateway never reconnects: when the
// stream ends Done is closed and Err reports why.
//
// # Errors
//
// Every operation returns *Error. Match on kind with errors.Is:
//
//	if errors.Is(err, reverb.ErrAuth) {
//		// wrong password
//	}
//
// # Pub/Sub
//
// PublisherBot republishes events to any watermill publisher. Payloads are
// in gateway wire format and read back with DecodeMessage:
//
//	pub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
//	bot := reverb.NewPublisherBot(pub, reverb.WithTopic("lavalink.events"))
package reverb
