// Package toxfilter blurs toxic language in HTML documents and checks
// composer text, in-process.
//
// A word lexicon annotates matches instantly. An optional remote classifier
// confirms or upgrades lexicon hits and flags text the lexicon missed.
// Without a classifier the filter runs lexicon-only.
//
//	f, _ := toxfilter.New(toxfilter.WithClassifierURL("http://localhost:5000"))
//	defer f.Close()
//
//	res, _ := f.ScanHTML(ctx, page)
//	fmt.Println(res.HTML, len(res.Annotations))
//
//	check, _ := f.CheckText(ctx, draft)
//	if check.Flagged {
//	    fmt.Println(check.Severity, check.Words)
//	}
package toxfilter
