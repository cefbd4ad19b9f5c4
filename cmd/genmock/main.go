// Command genmock writes deterministic synthetic radar volumes and a sounding
// as NetCDF files, plus a JSON-lines file of scan requests referencing them.
// The output feeds local runs of cmac and cmacd.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -count 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/storm-cmac-service/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/couchcryptid/storm-cmac-service/internal/synth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory for generated files")
	count := flag.Int("count", 1, "number of volumes, five minutes apart")
	site := flag.String("site", "sgp", "site name written into each volume")
	rays := flag.Int("rays", 36, "rays per sweep")
	gates := flag.Int("gates", 120, "gates per ray")
	flag.Parse()

	if *outDir == "" || *count < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flag -out-dir or invalid -count")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	opts := synth.DefaultOptions()
	opts.Site = *site
	opts.RaysPerSweep = *rays
	opts.Gates = *gates

	sondePath := filepath.Join(*outDir, *site+"_sonde.nc")
	snd := synth.Sounding(opts)
	if err := netcdf.WriteSounding(sondePath, &snd); err != nil {
		return fmt.Errorf("writing sounding: %w", err)
	}
	log.Printf("wrote sounding: %s", sondePath)

	requests := make([]domain.ScanRequest, 0, *count)
	for i := range *count {
		o := opts
		o.Time = opts.Time.Add(time.Duration(i) * 5 * time.Minute)
		o.CellAzimuth = opts.CellAzimuth + float64(i)*10

		name := fmt.Sprintf("%s_xsapr_%s.nc", *site, o.Time.Format("20060102_150405"))
		path := filepath.Join(*outDir, name)
		if err := netcdf.WriteVolume(path, synth.Volume(o)); err != nil {
			return fmt.Errorf("writing volume %s: %w", name, err)
		}
		log.Printf("wrote volume: %s", path)

		requests = append(requests, domain.ScanRequest{
			ID:        fmt.Sprintf("%s-%03d", *site, i),
			RadarFile: path,
			Sounding:  sondePath,
		})
	}

	reqPath := filepath.Join(*outDir, "scan_requests.jsonl")
	if err := writeJSONLines(reqPath, requests); err != nil {
		return fmt.Errorf("writing requests: %w", err)
	}
	log.Printf("wrote %d scan requests: %s", len(requests), reqPath)

	metaPath := filepath.Join(*outDir, "meta.json")
	if err := writeJSON(metaPath, domain.DefaultMetadata()); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	log.Printf("wrote metadata block: %s", metaPath)
	return nil
}

func writeJSONLines(path string, reqs []domain.ScanRequest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range reqs {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
