// Package twitter provides a small client for the paginated v2 endpoints.
//
// The client issues single GET requests and classifies each result as an
// Outcome; retrying and pacing are left to the caller. Endpoint values
// describe the parameter contract of each supported endpoint: where the
// query key goes, which parameter carries the continuation token, the
// accepted max_results and how many pages the API will serve.
//
// Example usage:
//
//	client := twitter.NewClient(twitter.BaseURL, token, 30*time.Second, log)
//	ep, _ := twitter.LookupEndpoint("search")
//
//	params := ep.QueryParams("#golang", ep.DefaultParams())
//	out := client.Fetch(ctx, ep.Path("#golang"), params)
//	switch out.Kind {
//	case twitter.OutcomeOK:
//	    fmt.Println(out.Response.Meta.ResultCount, out.Response.Meta.NextToken)
//	case twitter.OutcomeRetryable:
//	    fmt.Println("try again:", out.Reason())
//	}
package twitter
