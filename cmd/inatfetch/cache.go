package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
)

type CacheCmd struct {
	Stats CacheStatsCmd `cmd:"" default:"1" help:"Show response cache statistics."`
	Clear CacheClearCmd `cmd:"" help:"Delete cached responses."`
}

type CacheStatsCmd struct{}

func (c *CacheStatsCmd) Run(ctx context.Context, cli *CLI) error {
	st, err := cli.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.GetCacheStats(ctx, time.Now())
	if err != nil {
		return eris.Wrap(err, "cache stats")
	}

	version, err := st.MigrationVersion()
	if err != nil {
		return eris.Wrap(err, "schema version")
	}

	fmt.Printf("Cache: %s (schema v%d)\n", cli.CachePath, version)
	fmt.Printf("  entries:      %s (%s expired)\n", humanize.Comma(int64(stats.TotalCount)), humanize.Comma(int64(stats.ExpiredCount)))
	fmt.Printf("  size:         %s compressed, %s raw\n",
		humanize.Bytes(uint64(stats.CompressedBytes)), humanize.Bytes(uint64(stats.UncompressedBytes)))
	if stats.TotalCount > 0 {
		fmt.Printf("  oldest entry: %s\n", humanize.Time(stats.OldestFetchedAt))
		fmt.Printf("  newest entry: %s\n", humanize.Time(stats.NewestFetchedAt))
	}
	for _, endpoint := range slices.Sorted(maps.Keys(stats.CountByEndpoint)) {
		fmt.Printf("  %-22s %s\n", endpoint, humanize.Comma(int64(stats.CountByEndpoint[endpoint])))
	}
	return nil
}

type CacheClearCmd struct {
	ExpiredOnly bool `name:"expired-only" help:"Only delete entries past their TTL."`
}

func (c *CacheClearCmd) Run(ctx context.Context, cli *CLI) error {
	st, err := cli.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var n int64
	if c.ExpiredOnly {
		n, err = st.RemoveExpiredResponses(ctx, time.Now())
	} else {
		n, err = st.ClearCache(ctx)
	}
	if err != nil {
		return eris.Wrap(err, "clear cache")
	}
	fmt.Printf("Removed %s cached responses\n", humanize.Comma(n))
	return nil
}
