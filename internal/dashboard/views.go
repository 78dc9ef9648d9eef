package dashboard

import (
	"fmt"
	"time"

	"github.com/hemobank/bo-dashboard/internal/config"
	"github.com/hemobank/bo-dashboard/internal/fetch"
	"github.com/hemobank/bo-dashboard/internal/gate"
)

// ViewSpec is everything needed to build one view
type ViewSpec struct {
	Name    string
	Fetcher gate.Fetcher
	Params  map[string]string
	Timings config.Timings
}

// BuildViews creates view specs with HTTP fetchers from the configuration
func BuildViews(cfg *config.Config) ([]ViewSpec, error) {
	views := make([]ViewSpec, 0, len(cfg.Views))
	for _, v := range cfg.Views {
		timings := cfg.ViewTimings(v)

		// The gate enforces fetchTimeout and reports it as a timeout; the
		// client deadline sits just behind it
		opts := []fetch.Option{fetch.WithClient(fetch.NewDefaultClient(clientTimeout(timings)))}
		if v.DataPath != "" {
			opts = append(opts, fetch.WithDataPath(v.DataPath))
		}
		if v.Schema != "" {
			schema, err := fetch.LoadSchema(v.Schema)
			if err != nil {
				return nil, fmt.Errorf("view %s: %w", v.Name, err)
			}
			opts = append(opts, fetch.WithSchema(schema))
		}

		fetcher, err := fetch.NewJSONFetcher(v.Endpoint, opts...)
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", v.Name, err)
		}

		views = append(views, ViewSpec{
			Name:    v.Name,
			Fetcher: fetcher,
			Params:  v.Params,
			Timings: timings,
		})
	}
	return views, nil
}

// clientTimeout returns 0, the client default, when the gate is unbounded
func clientTimeout(t config.Timings) time.Duration {
	if t.FetchTimeout == 0 {
		return 0
	}
	return t.FetchTimeout + time.Second
}
