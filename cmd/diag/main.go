// Command diag predicts passes offline from a cached catalog, without the
// network or the HTTP service.
//
//	diag -cache /tmp/passd/tle -lat 39.7392 -lon -104.9903 -alt-km 1.609 -ids 25544 -hours 72
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/passes"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/transform"
)

func main() {
	var (
		cacheDir    = flag.String("cache", "/tmp/passd/tle", "catalog cache directory (newest tle_*.txt is used)")
		file        = flag.String("file", "", "read this TLE file instead of the cache directory")
		lat         = flag.Float64("lat", 39.7392, "site latitude, degrees")
		lon         = flag.Float64("lon", -104.9903, "site longitude, degrees")
		altKm       = flag.Float64("alt-km", 1.609, "site height above the ellipsoid, km")
		idList      = flag.String("ids", "", "comma-separated catalog numbers (default: first 5 in the catalog)")
		hours       = flag.Float64("hours", 72, "search window length from now, hours")
		step        = flag.Duration("step", passes.DefaultStep, "scan step")
		interpolate = flag.Bool("interpolate", true, "interpolate horizon crossings")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	data, fetchedAt, err := readCatalog(*file, *cacheDir)
	if err != nil {
		fmt.Println("ERROR reading TLE cache:", err)
		os.Exit(1)
	}

	res, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Println("ERROR parsing TLE:", err)
		os.Exit(1)
	}
	cat := tle.BuildCatalog(res.Records, res.Skipped, fetchedAt, tle.DefaultTTL, "diag")
	fmt.Printf("Loaded %d TLE entries (%d skipped), cached at %s\n", cat.Len(), res.Skipped, fetchedAt.Format(time.RFC3339))
	if cat.Len() == 0 {
		os.Exit(1)
	}

	ids, err := parseIDs(*idList)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		all := cat.IDs()
		ids = all[:min(5, len(all))]
	}

	site, err := transform.NewSite(*lat, *lon, *altKm)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}

	store := tle.NewStore()
	store.Set(cat)
	prop := propagation.NewPropagator(propagation.DefaultMaxEpochAge, logger)
	engine := passes.NewEngine(store, prop, passes.Config{Step: *step, Interpolate: *interpolate}, logger)

	start := time.Now().UTC()
	end := start.Add(time.Duration(*hours * float64(time.Hour)))
	fmt.Printf("Prediction window: %s .. %s\n", start.Format(time.RFC3339), end.Format(time.RFC3339))

	results, err := engine.PassesOver(context.Background(), ids, site, start, end)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}

	total := 0
	keys := make([]int, 0, len(results))
	for id := range results {
		keys = append(keys, id)
	}
	slices.Sort(keys)
	for _, id := range keys {
		rec, _ := cat.Lookup(id)
		found := results[id]
		fmt.Printf("  NORAD %d (%s): %d passes\n", id, rec.Name, len(found))
		total += len(found)
		for j, p := range found {
			fmt.Printf("    pass %d: aos=%s az=%.0f° max=%.1f° at %s los=%s az=%.0f° dur=%.0fs\n",
				j,
				p.Acquisition.Format(time.RFC3339),
				p.AcquisitionAzimuthDeg,
				p.MaxElevationDeg,
				p.MaxElevationTime.Format(time.RFC3339),
				p.Loss.Format(time.RFC3339),
				p.LossAzimuthDeg,
				p.Duration.Seconds(),
			)
		}
	}
	fmt.Printf("\nTotal passes found: %d\n", total)
}

func readCatalog(file, dir string) ([]byte, time.Time, error) {
	if file != "" {
		info, err := os.Stat(file)
		if err != nil {
			return nil, time.Time{}, err
		}
		data, err := os.ReadFile(file)
		return data, info.ModTime().UTC(), err
	}
	return tle.NewFileStore(dir, 0).Load(context.Background())
}

func parseIDs(v string) ([]int, error) {
	var ids []int
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog number %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
