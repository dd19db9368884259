// Package tokens provides token counting for budget accounting. Retrieval
// budgets and the API's input/output token reporting both go through a
// Counter.
package tokens

// Counter counts the tokens a piece of text occupies in a model's context
// window.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(string) int

func (f CounterFunc) Count(text string) int { return f(text) }
