// Package netscout is a Go client for the netscout search API.
//
// A search is a single streamed response. Progress arrives as step events,
// followed by exactly one terminal sequence: results then done, or error
// then done.
//
//	client, _ := netscout.New("https://netscout.example.com", netscout.WithToken(jwt))
//	out, err := client.Search(ctx, "Google summer interns in the bay area", func(ev netscout.Event) error {
//	    if ev.Name == netscout.EventStep {
//	        st, _ := ev.Step()
//	        fmt.Println(st.Name, st.Status)
//	    }
//	    return nil
//	})
//	for _, r := range out.Results {
//	    fmt.Println(r.MatchPercent, r.Candidate.FullName)
//	}
//
// The stream can also be read directly with a Decoder.
package netscout
