// Package search provides the web search capability bound to the planner.
//
// Tavily is the only backend. NewTool adapts any Searcher into the web_search
// tool definition; transport failures stay inside the tool result while
// credential failures abort the attempt.
package search
