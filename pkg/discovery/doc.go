// Package discovery implements mDNS service discovery for Thing servers.
//
// Servers advertise themselves under the "_hololinked._tcp" service type.
// TXT records carry the server ID, the hosted Thing IDs, the supported
// payload codecs and the HTTP gateway address when one is running.
//
// The Announcer keeps an advertisement in sync with a server's Thing set:
//
//	adv, _ := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
//	ann := discovery.NewAnnouncer(adv, discovery.ServerInfo{
//		ServerID: "lab-server",
//		Port:     7440,
//		Things:   []string{"spectrometer-1"},
//	})
//	ann.Start(ctx)
//	defer ann.Stop()
//
// Clients browse for servers, or locate the server hosting a specific
// Thing:
//
//	browser, _ := discovery.NewMDNSBrowser(discovery.BrowserConfig{})
//	svc, err := browser.FindThing(ctx, "spectrometer-1")
package discovery
