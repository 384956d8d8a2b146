package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry collects counters and gauges for the event bus and the
// filesystem watch/cache/refresh pipeline, exposed as Prometheus text
// exposition via WritePrometheus.
type Registry struct {
	eventsPublished sync.Map // bus\x00type -> *atomic.Int64
	eventsDropped   sync.Map // bus\x00type -> *atomic.Int64
	eventSubs       sync.Map // bus -> *subscriberCounts

	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	cacheMutations atomic.Int64

	refreshesRun      atomic.Int64
	changesEmitted    sync.Map // backend -> *atomic.Int64
	watchesRegistered atomic.Int64
	watchRestarts     atomic.Int64
}

type subscriberCounts struct {
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.counter(&r.eventsPublished, eventKey(bus, eventType)).Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.counter(&r.eventsDropped, eventKey(bus, eventType)).Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	counts := r.subscriberCounts(bus)
	counts.filtered.Store(int64(filtered))
	counts.unfiltered.Store(int64(unfiltered))
}

func (r *Registry) IncCacheHit() {
	if r == nil {
		return
	}
	r.cacheHits.Add(1)
}

func (r *Registry) IncCacheMiss() {
	if r == nil {
		return
	}
	r.cacheMisses.Add(1)
}

func (r *Registry) IncCacheMutation() {
	if r == nil {
		return
	}
	r.cacheMutations.Add(1)
}

func (r *Registry) IncRefreshRun() {
	if r == nil {
		return
	}
	r.refreshesRun.Add(1)
}

func (r *Registry) IncChangeEmitted(backend string) {
	if r == nil {
		return
	}
	if strings.TrimSpace(backend) == "" {
		backend = "unknown"
	}
	r.counter(&r.changesEmitted, backend).Add(1)
}

func (r *Registry) IncWatchRegistered() {
	if r == nil {
		return
	}
	r.watchesRegistered.Add(1)
}

func (r *Registry) IncWatchRestart() {
	if r == nil {
		return
	}
	r.watchRestarts.Add(1)
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeKeyedCounters(writer, "configwatch_events_published_total", "Total events published", "bus", "type", &r.eventsPublished)
	writeKeyedCounters(writer, "configwatch_events_dropped_total", "Total events dropped by full subscribers", "bus", "type", &r.eventsDropped)
	r.writeSubscriberGauges(writer)

	writeCounter(writer, "configwatch_cache_hits_total", "Resolved-configuration cache hits", r.cacheHits.Load())
	writeCounter(writer, "configwatch_cache_misses_total", "Resolved-configuration cache misses", r.cacheMisses.Load())
	writeCounter(writer, "configwatch_cache_mutations_total", "In-place mutations of cached configuration objects", r.cacheMutations.Load())
	writeCounter(writer, "configwatch_refreshes_total", "Refresh passes run", r.refreshesRun.Load())
	writeCounter(writer, "configwatch_watches_registered_total", "Watched files registered with the change detector", r.watchesRegistered.Load())
	writeCounter(writer, "configwatch_watch_restarts_total", "Watch handles restarted after backend failure", r.watchRestarts.Load())

	names := mapKeys(&r.changesEmitted)
	sort.Strings(names)
	writeHelp(writer, "configwatch_changes_emitted_total", "Changes emitted per watch backend")
	fmt.Fprintln(writer, "# TYPE configwatch_changes_emitted_total counter")
	for _, name := range names {
		value, _ := r.changesEmitted.Load(name)
		fmt.Fprintf(writer, "configwatch_changes_emitted_total{backend=%s} %d\n", formatLabel(name), value.(*atomic.Int64).Load())
	}

	return nil
}

func (r *Registry) writeSubscriberGauges(writer io.Writer) {
	names := mapKeys(&r.eventSubs)
	sort.Strings(names)
	writeHelp(writer, "configwatch_event_subscribers", "Active event bus subscribers")
	fmt.Fprintln(writer, "# TYPE configwatch_event_subscribers gauge")
	for _, name := range names {
		value, _ := r.eventSubs.Load(name)
		counts := value.(*subscriberCounts)
		fmt.Fprintf(writer, "configwatch_event_subscribers{bus=%s,filtered=\"true\"} %d\n", formatLabel(name), counts.filtered.Load())
		fmt.Fprintf(writer, "configwatch_event_subscribers{bus=%s,filtered=\"false\"} %d\n", formatLabel(name), counts.unfiltered.Load())
	}
}

func (r *Registry) counter(store *sync.Map, key string) *atomic.Int64 {
	value, _ := store.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func (r *Registry) subscriberCounts(bus string) *subscriberCounts {
	if strings.TrimSpace(bus) == "" {
		bus = "unknown"
	}
	value, _ := r.eventSubs.LoadOrStore(bus, &subscriberCounts{})
	return value.(*subscriberCounts)
}

func eventKey(bus, eventType string) string {
	if strings.TrimSpace(bus) == "" {
		bus = "unknown"
	}
	if strings.TrimSpace(eventType) == "" {
		eventType = "unknown"
	}
	return bus + "\x00" + eventType
}

func writeKeyedCounters(writer io.Writer, metric, help, labelA, labelB string, store *sync.Map) {
	names := mapKeys(store)
	sort.Strings(names)
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	for _, key := range names {
		parts := strings.SplitN(key, "\x00", 2)
		value, _ := store.Load(key)
		fmt.Fprintf(writer, "%s{%s=%s,%s=%s} %d\n", metric, labelA, formatLabel(parts[0]), labelB, formatLabel(parts[1]), value.(*atomic.Int64).Load())
	}
}

func mapKeys(store *sync.Map) []string {
	var keys []string
	store.Range(func(key, _ interface{}) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	return keys
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
