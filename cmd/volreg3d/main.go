package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"volreg3d/internal/models"
	"volreg3d/pkg/config"
	"volreg3d/pkg/interpolation"
	"volreg3d/pkg/registration"
	"volreg3d/pkg/visualization"
	"volreg3d/pkg/volume"
)

func main() {
	// Parse command line arguments
	referenceDir := flag.String("reference", "", "Directory containing the reference volume slices")
	movingDir := flag.String("moving", "", "Directory containing the moving volume slices")
	configPath := flag.String("config", "volreg3d.yaml", "Configuration file")
	outputFile := flag.String("output", "", "Output displacement field file (overrides config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (overrides config)")
	renderDir := flag.String("render-dir", "", "Directory to save displacement magnitude slices (overrides config)")
	smooth := flag.Bool("smooth", false, "Render a kriged displacement field instead of flat blocks")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if *referenceDir == "" || *movingDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *outputFile != "" {
		cfg.Output.FieldFile = *outputFile
	}
	if *numCores > 0 {
		cfg.Registration.NumCores = *numCores
	}
	if *renderDir != "" {
		cfg.Output.RenderDir = *renderDir
	}
	if *smooth {
		cfg.Output.Smooth = true
	}

	fmt.Println("================================")
	fmt.Println("BLOCK-WISE 3D PHASE CORRELATION REGISTRATION")
	fmt.Println("================================")

	fmt.Println("Step 1: Loading volumes...")
	reference := loadVolume(*referenceDir)
	moving := loadVolume(*movingDir)

	data := cfg.RegistrationData(reference, moving)
	field, err := registration.NewDisplacementField(reference.Dimensions(), data.WindowDimStart)
	if err != nil {
		log.Fatalf("Failed to lay out blocks: %v", err)
	}
	opts, err := cfg.ToRegistrationOptions()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.Output.Verbose {
		opts = append(opts, registration.WithProgress(registration.ConsoleProgress(os.Stdout)))
	}

	fmt.Printf("Step 2: Registering %d blocks of %v with a %v window on %d cores...\n",
		field.Size(), data.WindowDimStart, data.WindowType, cfg.Registration.NumCores)
	engine := registration.NewEngine(data, field, opts...)
	startTime := time.Now()
	if err := engine.Match(); err != nil {
		log.Fatalf("Registration failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nRegistration %s completed in %.2f seconds\n", engine.RunID(), processingTime.Seconds())
	fmt.Printf("Global displacement: %v\n", engine.GlobalDisplacement())

	fmt.Println("Step 3: Writing displacement field...")
	if err := writeField(field, cfg.Output.FieldFile, engine.RunID().String()); err != nil {
		log.Fatalf("Failed to write displacement field: %v", err)
	}
	fmt.Printf("Displacement field saved to: %s\n\n", cfg.Output.FieldFile)

	printSummary(field)

	if cfg.Output.RenderDir != "" {
		fmt.Println("\nRendering displacement magnitude slices...")
		if err := renderField(field, cfg); err != nil {
			log.Printf("Warning: Failed to render displacement field: %v", err)
		}
	}
}

// renderField saves magnitude slices along each axis, either block by block
// or from the kriged field on a grid of cfg.Output.RenderStep voxels.
func renderField(field *registration.DisplacementField, cfg *config.Config) error {
	var mag volume.Volume = visualization.FieldVolume(field, visualization.Magnitude, false)
	if cfg.Output.Smooth {
		k, err := interpolation.NewFieldKriging(field, true, interpolation.DefaultParams(field.BlockDimensions()))
		if err != nil {
			return err
		}
		fmt.Printf("Kriging %d reliable blocks every %d voxels...\n", k.Len(), cfg.Output.RenderStep)
		if mag, err = visualization.KrigedVolume(k, field.VolumeDimensions(), cfg.Output.RenderStep, visualization.Magnitude); err != nil {
			return err
		}
	}

	viewer := visualization.NewViewer(mag)
	for _, axis := range []string{"x", "y", "z"} {
		axisDir := filepath.Join(cfg.Output.RenderDir, axis)
		fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
		if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
		}
	}
	return nil
}

func loadVolume(dir string) *volume.Uint16 {
	stack, err := models.LoadStack(dir)
	if err != nil {
		log.Fatalf("Failed to load slices from %s: %v", dir, err)
	}
	v, err := stack.Volume()
	if err != nil {
		log.Fatalf("Failed to build volume from %s: %v", dir, err)
	}
	fmt.Printf("Loaded %d slices with dimensions %v from %s\n", stack.Len(), v.Dimensions(), dir)
	return v
}

func writeField(field *registration.DisplacementField, path, runID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return field.WriteYAML(file, runID)
}

func printSummary(field *registration.DisplacementField) {
	s := field.Summary()
	fmt.Printf("Displacement Field Summary:\n")
	fmt.Printf("===========================\n")
	fmt.Printf("Blocks: %d (%d reliable, %.1f%%)\n", s.Blocks, s.Reliable, s.ReliableFraction()*100)
	fmt.Printf("Mean displacement: (%.3f, %.3f, %.3f)\n", s.MeanDX, s.MeanDY, s.MeanDZ)
	fmt.Printf("Standard deviation: (%.3f, %.3f, %.3f)\n", s.StdDX, s.StdDY, s.StdDZ)
	fmt.Printf("Magnitude: mean %.3f, max %.3f\n", s.MeanMagnitude, s.MaxMagnitude)

	dims := field.VolumeDimensions()
	center := volume.NewPoint3D(dims.DimX/2, dims.DimY/2, dims.DimZ/2)
	i, e := field.Nearest(center)
	fmt.Printf("Block %d nearest the volume centre %v: %v\n", i, center, e.Displacement)

	affine, err := field.FitAffine(true)
	if err != nil {
		fmt.Printf("Affine fit skipped: %v\n", err)
		return
	}
	fmt.Println("\nAffine fit over reliable blocks [A | t]:")
	for r := 0; r < 3; r++ {
		fmt.Printf("  [% .4f % .4f % .4f | % .3f]\n",
			affine.Matrix.At(r, 0), affine.Matrix.At(r, 1), affine.Matrix.At(r, 2), affine.Matrix.At(r, 3))
	}
}
