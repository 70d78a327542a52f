// Package client is the QuantumAegis Go SDK.
//
// It wraps the dashboard backend's HTTP API: the metrics snapshot, the threat
// feed, the IP decision engine and the published key ring.
//
// # Reading the dashboard
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m, err := c.Metrics(ctx)
//	fmt.Println(m.ThreatsBlocked, m.Source)
//
//	threats, err := c.Threats(ctx, 10)
//
// # Scoring an address
//
//	d, err := c.IPCheck(ctx, "203.0.113.7")
//	fmt.Println(d.Decision, d.Risk) // "flag" 0.35
//
// The server answers malformed addresses with 400; the SDK surfaces that as
// an error carrying the server's message. A 429 maps to ErrRateLimited.
package client
