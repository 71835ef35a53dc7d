package flow

// Summary aggregates an arc set for run logs.
type Summary struct {
	Arcs               int
	Trips              int64
	UniqueOrigins      int
	UniqueDestinations int
	TripsByHour        map[string]int64
}

// Summarize counts arcs, trips and distinct endpoints.
func Summarize(arcs []ArcRecord) Summary {
	s := Summary{TripsByHour: make(map[string]int64)}
	origins := make(map[[2]float64]struct{})
	dests := make(map[[2]float64]struct{})
	for _, a := range arcs {
		s.Arcs++
		s.Trips += a.Trips
		s.TripsByHour[a.Hour] += a.Trips
		origins[[2]float64{a.FromLat, a.FromLon}] = struct{}{}
		dests[[2]float64{a.ToLat, a.ToLon}] = struct{}{}
	}
	s.UniqueOrigins = len(origins)
	s.UniqueDestinations = len(dests)
	return s
}
