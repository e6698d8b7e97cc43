// Package ranker orders retrieved files by cosine similarity to an issue.
//
//	r := ranker.New(ranker.DefaultOptions())
//	matches := r.Rank(issueVector, []ranker.Candidate{
//	    {Path: "parser.py", ContentLocation: url, Vector: fileVector},
//	})
//
// With the default options at most three files are returned, each with a
// similarity above 0.1 and a score rounded to two decimals.
package ranker
