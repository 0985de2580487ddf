package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"volmorph/pkg/chamfer"
	"volmorph/pkg/config"
	"volmorph/pkg/distmap"
	"volmorph/pkg/grid"
	"volmorph/pkg/labeling"
	"volmorph/pkg/watershed"
)

func main() {
	inputPath := flag.String("input", "", "Input image (any format supported by the imaging package)")
	outputPath := flag.String("output", "output.png", "Output image filename")
	configPath := flag.String("config", "volmorph.yaml", "YAML configuration file")
	operation := flag.String("op", "distance", "Operation to run: distance, watershed or labels")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	img, err := imaging.Open(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}
	relief, dims := toGrid(img)
	fmt.Printf("Loaded %s (%dx%d)\n", *inputPath, dims.Width, dims.Height)

	var progress grid.ProgressFunc
	if cfg.Output.Verbose {
		progress = func(stage string, done, total int) bool {
			fmt.Printf("\r%s: %d/%d", stage, done, total)
			return true
		}
	}

	startTime := time.Now()
	var out image.Image
	switch *operation {
	case "distance":
		out, err = runDistance(relief, dims, cfg, progress)
	case "watershed":
		out, err = runWatershed(relief, dims, cfg, progress)
	case "labels":
		out, err = runLabels(relief, dims, cfg, progress)
	default:
		log.Fatalf("Unknown operation %q (want distance, watershed or labels)", *operation)
	}
	if err != nil {
		log.Fatalf("Operation %s failed: %v", *operation, err)
	}
	if cfg.Output.Verbose {
		fmt.Println()
	}

	if err := imaging.Save(out, *outputPath); err != nil {
		log.Fatalf("Failed to save output: %v", err)
	}
	fmt.Printf("Completed %s in %.2f seconds, result saved to %s\n",
		*operation, time.Since(startTime).Seconds(), *outputPath)
}

// runDistance thresholds the image at zero and renders its chamfer
// distance map.
func runDistance(relief []float64, dims grid.Dims, cfg *config.Config, progress grid.ProgressFunc) (image.Image, error) {
	mask, err := chamfer.ByName(cfg.Distance.Mask, dims)
	if err != nil {
		return nil, err
	}
	binary := threshold(relief)
	opts := distmap.Options{Normalize: cfg.Distance.Normalize, Progress: progress}

	if cfg.Distance.FloatWeights {
		dist, err := distmap.DistanceMapFloat(binary, dims, mask, opts)
		if err != nil {
			return nil, err
		}
		return renderFloat(dist, dims), nil
	}

	dist, err := distmap.DistanceMapInt(binary, dims, mask, opts)
	if err != nil {
		return nil, err
	}
	floats := make([]float64, len(dist))
	for i, d := range dist {
		if d == grid.Unreached {
			floats[i] = math.Inf(1)
		} else {
			floats[i] = float64(d)
		}
	}
	return renderFloat(floats, dims), nil
}

// runWatershed segments the relief and prints a per-basin statistics
// table alongside the rendered label image.
func runWatershed(relief []float64, dims grid.Dims, cfg *config.Config, progress grid.ProgressFunc) (image.Image, error) {
	labels, err := watershed.Segment(relief, cfg.Watershed.Dynamic, dims, watershed.Options{
		Connectivity: grid.Connectivity(cfg.Watershed.Connectivity),
		HMin:         cfg.Watershed.HMin,
		HMax:         cfg.Watershed.HMax,
		Progress:     progress,
	})
	if err != nil {
		return nil, err
	}

	printRegionTable(labels, relief, dims)
	return renderLabels(labels, dims), nil
}

// runLabels thresholds the image, labels its connected components,
// applies the size opening and optional label dilation, and prints the
// region table.
func runLabels(relief []float64, dims grid.Dims, cfg *config.Config, progress grid.ProgressFunc) (image.Image, error) {
	conn := grid.Connectivity(cfg.Watershed.Connectivity)
	labels, n, err := labeling.ConnectedComponents(threshold(relief), dims, conn)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Found %d components\n", n)

	if cfg.Labeling.MinSize > 1 {
		labels, err = labeling.SizeOpening(labels, dims, cfg.Labeling.MinSize)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Labeling.DilationRadius > 0 {
		mask, err := chamfer.ByName(cfg.Distance.Mask, dims)
		if err != nil {
			return nil, err
		}
		labels, err = labeling.DilateLabels(labels, dims, mask, cfg.Labeling.DilationRadius)
		if err != nil {
			return nil, err
		}
	}

	printRegionTable(labels, relief, dims)
	return renderLabels(labels, dims), nil
}

func printRegionTable(labels []int32, values []float64, dims grid.Dims) {
	stats, err := labeling.RegionStats(labels, values, dims)
	if err != nil {
		log.Printf("Warning: failed to compute region statistics: %v", err)
		return
	}
	fmt.Printf("%6s %8s %10s %10s %10s %10s\n", "label", "count", "mean", "std", "min", "max")
	for _, s := range stats {
		fmt.Printf("%6d %8d %10.3f %10.3f %10.3f %10.3f\n",
			s.Label, s.Count, s.Mean, s.Std, s.Min, s.Max)
	}
}

// toGrid converts an image to a flat grayscale grid in [0, 255].
func toGrid(img image.Image) ([]float64, grid.Dims) {
	bounds := img.Bounds()
	dims := grid.Dims2D(bounds.Dx(), bounds.Dy())
	data := make([]float64, dims.Len())
	gray := imaging.Grayscale(img)
	for y := 0; y < dims.Height; y++ {
		for x := 0; x < dims.Width; x++ {
			r, _, _, _ := gray.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			data[dims.Index(x, y, 0)] = float64(r >> 8)
		}
	}
	return data, dims
}

func threshold(relief []float64) []uint8 {
	binary := make([]uint8, len(relief))
	for i, v := range relief {
		if v > 0 {
			binary[i] = 1
		}
	}
	return binary
}

// renderFloat maps finite values linearly onto 8-bit grayscale;
// unreached samples render white.
func renderFloat(data []float64, dims grid.Dims) image.Image {
	maxVal := 0.0
	for _, v := range data {
		if !math.IsInf(v, 1) && v > maxVal {
			maxVal = v
		}
	}
	img := image.NewGray(image.Rect(0, 0, dims.Width, dims.Height))
	for y := 0; y < dims.Height; y++ {
		for x := 0; x < dims.Width; x++ {
			v := data[dims.Index(x, y, 0)]
			var g uint8
			switch {
			case math.IsInf(v, 1):
				g = 255
			case maxVal > 0:
				g = uint8(255 * v / maxVal)
			}
			img.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return img
}

// renderLabels spreads label ids over the grayscale range; watershed
// lines render black, background dark gray.
func renderLabels(labels []int32, dims grid.Dims) image.Image {
	maxLabel := int32(0)
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	img := image.NewGray(image.Rect(0, 0, dims.Width, dims.Height))
	for y := 0; y < dims.Height; y++ {
		for x := 0; x < dims.Width; x++ {
			l := labels[dims.Index(x, y, 0)]
			var g uint8
			switch {
			case l == grid.WatershedLine:
				g = 0
			case l == 0:
				g = 32
			default:
				g = uint8(64 + int32(191)*l/maxLabel)
			}
			img.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return img
}
