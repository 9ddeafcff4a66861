// Package clinevid provides a Go client for the clinevid clinical
// evidence API.
//
// Answers stream as server-sent events; the client decodes them and hands
// each one to a caller-supplied function:
//
//	client, _ := clinevid.New("http://localhost:8080",
//	    clinevid.WithAPIKey(os.Getenv("CLINEVID_API_KEY")),
//	)
//
//	err := client.Query(ctx, clinevid.QueryRequest{
//	    Query: "Does exercise reduce knee osteoarthritis pain?",
//	    Mode:  clinevid.ModeEvidence,
//	}, func(ev clinevid.Event) error {
//	    if ev.Type == clinevid.EventToken {
//	        fmt.Print(ev.Token)
//	    }
//	    return nil
//	})
//
// Model endpoints behind the API scale to zero when idle. Status reports
// their current state without waking them; Wake starts them spinning up so
// a later Query lands on warm endpoints.
package clinevid
