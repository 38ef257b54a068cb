// Artifact import tool for FraudLens.
//
// Usage:
//   go run cmd/artifacts/main.go -dir ./artifacts -target sql
//   go run cmd/artifacts/main.go -demo -target redis -variant full
//
// This tool:
//   1. Reads artifact files (<name>.json, model.bin) from a training output directory
//   2. Decodes each one to reject malformed payloads before they are stored
//   3. Writes them to the SQL or Redis artifact store
//   4. Loads the stored set back to confirm the service will start with it
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/opensource-finance/fraudlens/internal/artifact"
	"github.com/opensource-finance/fraudlens/internal/config"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/repository"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON config file")
	dir := flag.String("dir", "", "Directory of artifact JSON files (default: configured artifact dir)")
	target := flag.String("target", "", "Artifact store to write: sql or redis (default: configured source)")
	variant := flag.String("variant", "", "Schema variant to verify: full or cluster (default: configured variant)")
	demo := flag.Bool("demo", false, "Import the built-in demo artifacts instead of a directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("ERROR: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *dir == "" {
		*dir = cfg.Artifacts.Dir
	}
	if *target == "" {
		*target = cfg.Artifacts.Source
	}
	v := cfg.Variant
	if *variant != "" {
		v = domain.SchemaVariant(*variant)
	}
	if !v.Valid() {
		fmt.Printf("ERROR: unknown variant %q\n", v)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, closeStore, err := openStore(cfg, *target)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	var (
		src   artifact.Source
		names []string
	)
	if *demo {
		mem, err := artifact.DemoArtifacts(v)
		if err != nil {
			fmt.Printf("ERROR: failed to build demo artifacts: %v\n", err)
			os.Exit(1)
		}
		src, names = mem, artifact.Names(v)
		fmt.Printf("Importing demo artifacts for the %s variant\n", v)
	} else {
		ds := artifact.NewDirSource(*dir)
		names, err = ds.Names()
		if err != nil {
			fmt.Printf("ERROR: failed to list %s: %v\n", *dir, err)
			os.Exit(1)
		}
		if len(names) == 0 {
			fmt.Printf("ERROR: no artifact files in %s\n", *dir)
			os.Exit(1)
		}
		src = ds
		fmt.Printf("Importing %d artifacts from %s\n", len(names), *dir)
	}

	imported, err := importArtifacts(ctx, src, store, names)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Stored %d artifacts in %s\n", imported, *target)

	reg, err := artifact.Load(ctx, store, v)
	if err != nil {
		fmt.Printf("ERROR: stored artifacts do not form a complete %s set: %v\n", v, err)
		os.Exit(1)
	}
	fmt.Printf("✓ Verified %s set (model expects %d features)\n", v, reg.Model().NumFeatures())
}

// openStore opens the writable artifact store named by target.
func openStore(cfg *domain.Config, target string) (artifact.Store, func(), error) {
	switch target {
	case "sql":
		if cfg.Repository.Driver == "none" {
			return nil, nil, fmt.Errorf("sql target requires a repository driver")
		}
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open repository: %w", err)
		}
		return artifact.NewSQLSource(repo), func() { repo.Close() }, nil
	case "redis":
		src, err := artifact.NewRedisSource(cfg.Artifacts.RedisAddr, cfg.Artifacts.RedisPassword, cfg.Artifacts.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported import target %q (want sql or redis)", target)
	}
}

// importArtifacts validates each payload and writes it to store. Nothing
// is written unless every payload decodes.
func importArtifacts(ctx context.Context, src artifact.Source, store artifact.Store, names []string) (int, error) {
	payloads := make(map[string][]byte, len(names))
	for _, name := range names {
		payload, err := src.Fetch(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", name, err)
		}
		if err := artifact.Validate(name, payload); err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		payloads[name] = payload
	}

	for _, name := range names {
		if err := store.Put(ctx, name, payloads[name]); err != nil {
			return 0, fmt.Errorf("write %s: %w", name, err)
		}
		fmt.Printf("  - %s (%d bytes)\n", name, len(payloads[name]))
	}
	return len(names), nil
}
