// normalize runs the normalization of a parcel file on a local copy and prints the geometry and its buffer extent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/pipeline"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

type config struct {
	Input           string
	WorkingDir      string
	OutputDir       string
	TargetSRID      int
	BufferDegrees   float64
	AttributePolicy pipeline.AttributePolicy
	Keep            bool
}

type output struct {
	Path   string        `json:"path,omitempty"`
	WKT    string        `json:"wkt"`
	SRID   int           `json:"srid"`
	Extent common.Extent `json:"buffer_extent"`
	Rings  int           `json:"rings"`
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Input, "input", "", "vector file to normalize (zip, gpkg or geojson)")
	flag.StringVar(&config.WorkingDir, "workdir", os.TempDir(), "working directory")
	flag.StringVar(&config.OutputDir, "output-dir", "", "directory to write the result as result.json (optional)")
	flag.IntVar(&config.TargetSRID, "target-srid", 3857, "srid of the normalized geometry")
	flag.Float64Var(&config.BufferDegrees, "buffer-degrees", pipeline.DefaultBufferDegrees, "distance of the buffer around the geometry (degrees)")
	attributePolicy := flag.String("attribute-policy", pipeline.KeepFirst.String(), "properties of the collapsed feature")
	flag.BoolVar(&config.Keep, "keep", false, "keep the normalized file in the working directory")
	flag.Parse()

	if config.Input == "" {
		if flag.NArg() != 1 {
			return nil, fmt.Errorf("missing input file")
		}
		config.Input = flag.Arg(0)
	}
	var err error
	if config.AttributePolicy, err = pipeline.AttributePolicyString(*attributePolicy); err != nil {
		return nil, fmt.Errorf("attribute-policy: %w", err)
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		if e, ok := service.AsError(err); ok {
			fmt.Fprintf(os.Stderr, "%s: %s\n", e.Kind, e.Message)
		}
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	// The pipeline rewrites the file in place: work on a copy
	workdir := filepath.Join(config.WorkingDir, uuid.New().String())
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return fmt.Errorf("MkdirAll: %w", err)
	}
	if !config.Keep {
		defer os.RemoveAll(workdir)
	}
	f, err := os.Open(config.Input)
	if err != nil {
		return fmt.Errorf("Open: %w", err)
	}
	defer f.Close()
	path := filepath.Join(workdir, common.FileName("upload", service.GetExt(config.Input)))
	if err := atomic.WriteFile(path, f); err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}

	res, err := pipeline.Run(ctx, path, pipeline.Options{
		TargetSRID:      config.TargetSRID,
		BufferDegrees:   config.BufferDegrees,
		AttributePolicy: config.AttributePolicy,
	})
	if err != nil {
		return fmt.Errorf("pipeline.Run: %w", err)
	}

	out := output{WKT: res.WKT, SRID: res.SRID, Extent: res.Extent, Rings: res.Rings}
	if config.Keep {
		out.Path = res.Path
	}
	fmt.Printf("SRID=%d;%s\n", res.SRID, res.WKT)
	fmt.Printf("buffer extent: %s\n", res.Extent)
	return service.ToJSON(out, config.OutputDir, "result.json")
}
