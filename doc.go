// Package hearth is a client library for the Hearth home security cloud.
//
// It wraps the vendor REST API and the push channel behind one Client:
// authentication with lazy re-login, a device registry with stable device
// identities, alarm arming, confirmed device commands, automations and
// quick actions, and callback-based push events. Optional local services
// record the timeline to SQLite, republish state over MQTT, and write
// connectivity metrics to InfluxDB.
//
// A minimal consumer:
//
//	cfg := config.Default()
//	cfg.Auth.Username = "user@example.com"
//	cfg.Auth.Password = "..."
//
//	client, err := hearth.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Stop()
//
//	if err := client.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	client.Events().AddConnectionStatusCallback("main", func(up bool) {
//		log.Println("stream connected:", up)
//	})
//
//	alarm, err := client.Alarm(ctx, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := alarm.SetAway(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Callers that only need REST access can skip Start entirely; every
// operation logs in on demand.
package hearth
