package observability

type Metrics interface {
	ObserveCheckout(outcome string, durMs float64)
	ObserveHTTP(method, route string, status int, durMs float64)
	ObserveDownstream(target string, ok bool, durMs float64)
	ObserveDispatch(channel, outcome string, durMs float64)
	IncCircuitOpen(target string)
	IncCacheHit()
	IncCacheMiss()
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveCheckout(string, float64)            {}
func (Noop) ObserveHTTP(string, string, int, float64)   {}
func (Noop) ObserveDownstream(string, bool, float64)    {}
func (Noop) ObserveDispatch(string, string, float64)    {}
func (Noop) IncCircuitOpen(string)                      {}
func (Noop) IncCacheHit()                               {}
func (Noop) IncCacheMiss()                              {}
